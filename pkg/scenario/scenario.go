// Package scenario holds the static catalog of patient personas used to
// exercise a receptionist agent over the phone. A scenario is immutable:
// it is loaded once at startup and only ever read afterwards.
package scenario

import (
	"fmt"
	"strings"
)

// Scenario describes one scripted patient persona.
type Scenario struct {
	ID           string
	Name         string
	SystemPrompt string
	OpeningLine  string
}

// patientWrapper frames a persona's system prompt so the realtime model
// stays in character on a live phone call. The opening line is embedded
// so the model knows how to start the conversation.
const patientWrapper = "You are role-playing as a patient calling an orthopedic clinic (Pivot Point " +
	"Orthopedics) on the phone. You are speaking with the clinic's AI receptionist.\n\n" +
	"RULES:\n" +
	"- Stay in character at all times as the patient described below\n" +
	"- Respond naturally and conversationally, like a real phone call\n" +
	"- Keep responses to 1-3 sentences — don't monologue\n" +
	"- Do not narrate actions or use stage directions\n" +
	"- If the receptionist asks for info your character has, provide it naturally\n" +
	"- When the conversation reaches a natural end, say goodbye politely\n\n" +
	"PATIENT PERSONA:\n%s\n\n" +
	"Start the conversation with something like: \"%s\""

// Instructions renders the persona into session instructions for the
// realtime speech model.
func (s Scenario) Instructions() string {
	return fmt.Sprintf(patientWrapper, s.SystemPrompt, s.OpeningLine)
}

// Catalog is an ordered, read-only list of scenarios.
type Catalog struct {
	scenarios []Scenario
}

func NewCatalog(scenarios []Scenario) *Catalog {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	return &Catalog{scenarios: out}
}

func (c *Catalog) Len() int { return len(c.scenarios) }

// List returns a copy of the catalog in index order.
func (c *Catalog) List() []Scenario {
	out := make([]Scenario, len(c.scenarios))
	copy(out, c.scenarios)
	return out
}

// ByIndex returns the scenario at index i or an error when i is out of
// range.
func (c *Catalog) ByIndex(i int) (Scenario, error) {
	if i < 0 || i >= len(c.scenarios) {
		return Scenario{}, fmt.Errorf("scenario index %d out of range, use 0-%d", i, len(c.scenarios)-1)
	}
	return c.scenarios[i], nil
}

// ByID looks a scenario up by its identifier.
func (c *Catalog) ByID(id string) (Scenario, bool) {
	for _, s := range c.scenarios {
		if strings.EqualFold(s.ID, id) {
			return s, true
		}
	}
	return Scenario{}, false
}
