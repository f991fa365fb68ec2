package mast

import (
	"fmt"
	"strings"
)

// Mode 表示 MAST 失效分类中的一种失效模式。
type Mode struct {
	ID          string `json:"modeId"`
	Name        string `json:"modeName"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

const (
	CategorySystemDesign   = "FC1: System Design Issues"
	CategoryMisalignment   = "FC2: Inter-Agent Misalignment"
	CategoryVerification   = "FC3: Task Verification"
	ModeDisobeyTask        = "FM-1.1"
	ModeDisobeyRole        = "FM-1.2"
	ModeStepRepetition     = "FM-1.3"
	ModeLossOfHistory      = "FM-1.4"
	ModeUnawareTermination = "FM-1.5"
	ModeConversationReset  = "FM-2.1"
	ModeNoClarification    = "FM-2.2"
	ModeTaskDerailment     = "FM-2.3"
	ModeWithholding        = "FM-2.4"
	ModeIgnoredInput       = "FM-2.5"
	ModeReasoningMismatch  = "FM-2.6"
	ModePrematureEnd       = "FM-3.1"
	ModeNoVerification     = "FM-3.2"
	ModeWrongVerification  = "FM-3.3"
)

var taxonomy = []Mode{
	{ModeDisobeyTask, "Disobey task specification", CategorySystemDesign, "Violates constraints/requirements"},
	{ModeDisobeyRole, "Disobey role specification", CategorySystemDesign, "Agent acts outside its assigned persona"},
	{ModeStepRepetition, "Step repetition", CategorySystemDesign, "Unnecessary reiteration of completed steps"},
	{ModeLossOfHistory, "Loss of conversation history", CategorySystemDesign, "Forgets context/previous turns"},
	{ModeUnawareTermination, "Unaware of termination conditions", CategorySystemDesign, "Doesn't know when to stop"},
	{ModeConversationReset, "Conversation reset", CategoryMisalignment, "Unexpectedly restarts dialogue"},
	{ModeNoClarification, "Fail to ask for clarification", CategoryMisalignment, "Proceeds with wrong assumptions"},
	{ModeTaskDerailment, "Task derailment", CategoryMisalignment, "Deviates from the intended objective"},
	{ModeWithholding, "Information withholding", CategoryMisalignment, "Possesses data but doesn't share it"},
	{ModeIgnoredInput, "Ignored other agent's input", CategoryMisalignment, "Disregards teammate's logic"},
	{ModeReasoningMismatch, "Reasoning-action mismatch", CategoryMisalignment, "Logic says one thing, action does another"},
	{ModePrematureEnd, "Premature termination", CategoryVerification, "Ends task before completion"},
	{ModeNoVerification, "No or incomplete verification", CategoryVerification, "Omission of proper checking"},
	{ModeWrongVerification, "Incorrect verification", CategoryVerification, "Validates wrong/false information"},
}

var modesByID = func() map[string]Mode {
	m := make(map[string]Mode, len(taxonomy))
	for _, mode := range taxonomy {
		m[mode.ID] = mode
	}
	return m
}()

// Taxonomy returns a copy of every known failure mode.
func Taxonomy() []Mode {
	return append([]Mode(nil), taxonomy...)
}

// Lookup finds a failure mode by its FM-x.y identifier.
func Lookup(id string) (Mode, bool) {
	mode, ok := modesByID[strings.ToUpper(strings.TrimSpace(id))]
	return mode, ok
}

// Describe renders the taxonomy grouped by category, for prompts.
func Describe() string {
	var builder strings.Builder
	category := ""
	for _, mode := range taxonomy {
		if mode.Category != category {
			if category != "" {
				builder.WriteString("\n")
			}
			category = mode.Category
			builder.WriteString(category)
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("- %s: %s (%s)\n", mode.ID, mode.Name, mode.Description))
	}
	return builder.String()
}
