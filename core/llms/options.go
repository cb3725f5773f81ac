package llms

import "slices"

type BaseOptions struct {
	Instructions string
	Turns        []Turn
}

// SamplingOptions overrides the client defaults for a single request. Zero
// values leave the client defaults in place.
type SamplingOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

type GeneralPromptOptions struct {
	BaseOptions
	SamplingOptions
}

type StreamingPromptOptions struct {
	GeneralPromptOptions
}

type StructuredPromptOptions struct {
	BaseOptions
	SamplingOptions
}

// PromptOptions is the shared view of the options that a PromptOption
// modifies. It is copied in and out of the specialised option structs.
type PromptOptions struct {
	BaseOptions
	SamplingOptions
}

// PromptOption is a function that can be used to modify the prompt options.
// It can be applied to general, streaming and structured prompts.
type PromptOption func(*PromptOptions)

type GeneralPromptOption interface {
	ApplyToGeneral(*GeneralPromptOptions)
}

type StreamingPromptOption interface {
	ApplyToStreaming(*StreamingPromptOptions)
}

type StructuredPromptOption interface {
	ApplyToStructured(*StructuredPromptOptions)
}

func (f PromptOption) ApplyToGeneral(o *GeneralPromptOptions) {
	opts := PromptOptions{BaseOptions: o.BaseOptions, SamplingOptions: o.SamplingOptions}
	f(&opts)
	o.BaseOptions = opts.BaseOptions
	o.SamplingOptions = opts.SamplingOptions
}

func (f PromptOption) ApplyToStreaming(o *StreamingPromptOptions) {
	f.ApplyToGeneral(&o.GeneralPromptOptions)
}

func (f PromptOption) ApplyToStructured(o *StructuredPromptOptions) {
	opts := PromptOptions{BaseOptions: o.BaseOptions, SamplingOptions: o.SamplingOptions}
	f(&opts)
	o.BaseOptions = opts.BaseOptions
	o.SamplingOptions = opts.SamplingOptions
}

// WithSystemPrompt is a PromptOption that sets the system prompt for the
// prompt.
// Repeating this option will overwrite the previous system prompt.
func WithSystemPrompt(prompt string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Instructions = prompt
	}
}

// WithTurns is a PromptOption that adds turns information to the prompt.
// Repeating this option will sequentially add more turns.
//
// System turns are lifted into the instructions unless instructions were
// already set explicitly.
func WithTurns(turns ...Turn) PromptOption {
	return func(opts *PromptOptions) {
		for _, turn := range turns {
			if turn.Role == RoleSystem {
				if opts.Instructions == "" {
					opts.Instructions = turn.Content
				}
				continue
			}
			opts.Turns = append(slices.Clip(opts.Turns), turn)
		}
	}
}

func WithModel(model string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Model = model
	}
}

func WithMaxTokens(maxTokens int) PromptOption {
	return func(opts *PromptOptions) {
		opts.MaxTokens = maxTokens
	}
}

func WithTemperature(temperature float64) PromptOption {
	return func(opts *PromptOptions) {
		opts.Temperature = &temperature
	}
}
