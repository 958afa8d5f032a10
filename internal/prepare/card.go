package prepare

import (
	"encoding/json"
	"fmt"
)

type cardElement map[string]any

// renderCard renders content as an Adaptive Card.
func renderCard(c Content) ([]byte, error) {
	if c.Title == "" {
		return nil, fmt.Errorf("content has no title")
	}

	body := []cardElement{
		{
			"type":   "TextBlock",
			"text":   c.Title,
			"size":   "ExtraLarge",
			"weight": "Bolder",
			"wrap":   true,
		},
	}

	if c.ImageURL != "" {
		body = append(body, cardElement{
			"type":                "Image",
			"url":                 c.ImageURL,
			"spacing":             "Default",
			"size":                "Stretch",
			"altText":             "",
			"horizontalAlignment": "Center",
		})
	}

	if c.Summary != "" {
		body = append(body, cardElement{
			"type": "TextBlock",
			"text": c.Summary,
			"wrap": true,
		})
	}

	if c.Author != "" {
		body = append(body, cardElement{
			"type":     "TextBlock",
			"text":     c.Author,
			"size":     "Small",
			"weight":   "Lighter",
			"wrap":     true,
			"isSubtle": true,
		})
	}

	card := cardElement{
		"type":    "AdaptiveCard",
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"version": "1.2",
		"body":    body,
	}

	if c.ButtonTitle != "" && c.ButtonLink != "" {
		card["actions"] = []cardElement{
			{
				"type":  "Action.OpenUrl",
				"title": c.ButtonTitle,
				"url":   c.ButtonLink,
			},
		}
	}

	return json.Marshal(card)
}
