package wf

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/notifyhub/prepflow/workflow"
)

func PrepareToSend(ctx workflow.Context, notificationID string) error {
	return nil
}

func renderContent(ctx workflow.Context) (string, error) {
	return "", nil
}

func tooManyResults(ctx workflow.Context) (int, string, error) { // want "workflow \"tooManyResults\" returns more than two values"
	return 42, "", nil
}

func wrongOrder(ctx workflow.Context) (error, string) { // want "workflow \"wrongOrder\" doesn't return `error` as last return value"
	return nil, ""
}

func withoutReturn(ctx workflow.Context) { // want "workflow \"withoutReturn\" doesn't return anything. needs to return at least `error`"
}

func iteratingOverMap(ctx workflow.Context) error {
	teams := map[string]int{}

	for _, v := range teams { // want "iterating over a map is not deterministic and not allowed in workflows"
		if v == 0 {
			return nil
		}
	}

	return nil
}

func iteratingOverSlice(ctx workflow.Context, teams []string) error {
	for _, team := range teams {
		fmt.Println(team)
	}

	return nil
}

func nestedMapIteration(ctx workflow.Context) error {
	teams := map[string]int{}

	if len(teams) > 0 {
		for range teams { // want "iterating over a map is not deterministic and not allowed in workflows"
		}
	}

	return nil
}

func usingGoRoutine(ctx workflow.Context) error {
	go func() { // want "use workflow.ForkJoin instead of `go` in workflows"
		fmt.Println("hello")
	}()

	return nil
}

func usingSelect(ctx workflow.Context, c chan int) error {
	select { // want "select is not allowed in workflows, wait on futures instead"
	case <-c:
	}

	return nil
}

func usingWallClock(ctx workflow.Context) error {
	_ = time.Now() // want "use workflow.Now instead of time.Now in workflows"
	_ = workflow.Now(ctx)

	time.Sleep(time.Second) // want "use workflow.Sleep instead of time.Sleep in workflows"

	<-time.After(time.Second) // want "use workflow.ScheduleTimer instead of time.After in workflows"

	_ = time.Duration(5) * time.Second

	return nil
}

func usingRandom(ctx workflow.Context) error {
	_ = rand.Intn(10) // want "rand.Intn is not deterministic, generate random values in an activity"

	return nil
}

// Activities may do all of this.
func dispatchBatch(ctx context.Context) error {
	go func() {}()
	_ = time.Now()

	return nil
}
