// Package plugin registers the determinism checker as a golangci-lint module plugin.
package plugin

import (
	"github.com/golangci/plugin-module-register/register"
	"golang.org/x/tools/go/analysis"

	"github.com/notifyhub/prepflow/analyzer"
)

func init() {
	register.Plugin("prepflowvet", New)
}

type Settings struct {
	CheckPrivateReturnValues bool `json:"check-private-return-values"`
}

type analyzerPlugin struct {
	settings Settings
}

func New(settings any) (register.LinterPlugin, error) {
	s, err := register.DecodeSettings[Settings](settings)
	if err != nil {
		return nil, err
	}

	return &analyzerPlugin{settings: s}, nil
}

func (p *analyzerPlugin) BuildAnalyzers() ([]*analysis.Analyzer, error) {
	a := analyzer.New()
	if p.settings.CheckPrivateReturnValues {
		if err := a.Flags.Set("checkprivatereturnvalues", "true"); err != nil {
			return nil, err
		}
	}

	return []*analysis.Analyzer{a}, nil
}

func (p *analyzerPlugin) GetLoadMode() string {
	return register.LoadModeTypesInfo
}
