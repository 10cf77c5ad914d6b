// Package letter produces cover-letter text for one application according to
// the search's letter mode.
package letter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pavel8512/hhpilot/pkg/hh"
	"github.com/pavel8512/hhpilot/pkg/llm"
	"github.com/pavel8512/hhpilot/pkg/resume"
	"github.com/pavel8512/hhpilot/pkg/search"
)

// ErrEmptyCustomLetter means a search configured for custom letters carries
// no text. The use-case layer validates this on write, but an older row can
// still violate it.
var ErrEmptyCustomLetter = errors.New("custom letter mode with empty cover letter")

// Producer resolves the letter text for a vacancy. An AI failure never blocks
// a submission: the deterministic template is the fallback.
type Producer struct {
	model llm.ChatModel
	log   *zap.Logger
}

func NewProducer(model llm.ChatModel, log *zap.Logger) *Producer {
	return &Producer{model: model, log: log}
}

// Produce returns the letter text and the mode that actually produced it
// (an AI fallback is reported as default).
func (p *Producer) Produce(ctx context.Context, s search.Search, vac hh.VacancyDetail, res resume.Resume) (string, search.LetterMode, error) {
	switch s.LetterMode {
	case search.LetterModeCustom:
		if strings.TrimSpace(s.CoverLetter) == "" {
			return "", "", ErrEmptyCustomLetter
		}
		return s.CoverLetter, search.LetterModeCustom, nil

	case search.LetterModeAI:
		if p.model == nil {
			return defaultLetter(vac, res), search.LetterModeDefault, nil
		}
		text, err := p.generate(ctx, vac, res)
		if err != nil {
			p.log.Warn("letter generation failed, using default template",
				zap.String("vacancy_id", vac.ID), zap.Error(err))
			return defaultLetter(vac, res), search.LetterModeDefault, nil
		}
		return text, search.LetterModeAI, nil

	default:
		return defaultLetter(vac, res), search.LetterModeDefault, nil
	}
}

const systemPrompt = "You write short, specific cover letters for job applications. " +
	"Reply with the letter text only, no preamble, at most 150 words, in the language of the vacancy."

func (p *Producer) generate(ctx context.Context, vac hh.VacancyDetail, res resume.Resume) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Vacancy: %s at %s\n", vac.Title, vac.Employer)
	if vac.Requirement != "" {
		fmt.Fprintf(&b, "Requirements: %s\n", vac.Requirement)
	}
	if vac.Responsibility != "" {
		fmt.Fprintf(&b, "Responsibilities: %s\n", vac.Responsibility)
	}
	fmt.Fprintf(&b, "Candidate: %s\n", res.FullName())
	if res.Summary != "" {
		fmt.Fprintf(&b, "Candidate summary: %s\n", res.Summary)
	}
	text, err := p.model.Ask(ctx, systemPrompt, b.String())
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("model returned empty letter")
	}
	return text, nil
}

func defaultLetter(vac hh.VacancyDetail, res resume.Resume) string {
	about := res.Summary
	if about == "" {
		about = "Ready to discuss the details of working together."
	}
	signature := res.FullName()
	if signature == "" {
		signature = "Applicant"
	}
	return fmt.Sprintf(`Hello!

I am interested in the "%s" position at %s.

%s

I would be glad to discuss my experience and how I can contribute to your team.

Best regards,
%s`, vac.Title, vac.Employer, about, signature)
}
