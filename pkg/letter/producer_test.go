package letter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pavel8512/hhpilot/pkg/hh"
	"github.com/pavel8512/hhpilot/pkg/resume"
	"github.com/pavel8512/hhpilot/pkg/search"
)

type fakeModel struct {
	reply string
	err   error
}

func (f fakeModel) Ask(ctx context.Context, system, user string) (string, error) {
	return f.reply, f.err
}

var testVacancy = hh.VacancyDetail{
	Vacancy: hh.Vacancy{ID: "101", Title: "Go Developer", Employer: "Acme"},
}

var testResume = resume.Resume{
	FirstName: "Ivan",
	LastName:  "Petrov",
	Summary:   "Five years of backend development.",
}

func TestProduce_CustomMode(t *testing.T) {
	p := NewProducer(fakeModel{reply: "should not be used"}, zap.NewNop())
	s := search.Search{LetterMode: search.LetterModeCustom, CoverLetter: "My fixed letter."}

	text, mode, err := p.Produce(context.Background(), s, testVacancy, testResume)
	require.NoError(t, err)
	require.Equal(t, "My fixed letter.", text)
	require.Equal(t, search.LetterModeCustom, mode)
}

func TestProduce_CustomModeEmptyText(t *testing.T) {
	p := NewProducer(nil, zap.NewNop())
	s := search.Search{LetterMode: search.LetterModeCustom, CoverLetter: "   "}

	_, _, err := p.Produce(context.Background(), s, testVacancy, testResume)
	require.ErrorIs(t, err, ErrEmptyCustomLetter)
}

func TestProduce_AIMode(t *testing.T) {
	p := NewProducer(fakeModel{reply: "Generated letter."}, zap.NewNop())
	s := search.Search{LetterMode: search.LetterModeAI}

	text, mode, err := p.Produce(context.Background(), s, testVacancy, testResume)
	require.NoError(t, err)
	require.Equal(t, "Generated letter.", text)
	require.Equal(t, search.LetterModeAI, mode)
}

func TestProduce_AIFailureFallsBackToDefault(t *testing.T) {
	p := NewProducer(fakeModel{err: errors.New("model unavailable")}, zap.NewNop())
	s := search.Search{LetterMode: search.LetterModeAI}

	text, mode, err := p.Produce(context.Background(), s, testVacancy, testResume)
	require.NoError(t, err)
	require.Equal(t, search.LetterModeDefault, mode)
	require.Contains(t, text, "Go Developer")
	require.Contains(t, text, "Acme")
	require.Contains(t, text, "Ivan Petrov")
}

func TestProduce_AIEmptyReplyFallsBack(t *testing.T) {
	p := NewProducer(fakeModel{reply: "  \n "}, zap.NewNop())
	s := search.Search{LetterMode: search.LetterModeAI}

	text, mode, err := p.Produce(context.Background(), s, testVacancy, testResume)
	require.NoError(t, err)
	require.Equal(t, search.LetterModeDefault, mode)
	require.NotEmpty(t, text)
}

func TestProduce_DefaultModeUsesSummary(t *testing.T) {
	p := NewProducer(nil, zap.NewNop())
	s := search.Search{LetterMode: search.LetterModeDefault}

	text, mode, err := p.Produce(context.Background(), s, testVacancy, testResume)
	require.NoError(t, err)
	require.Equal(t, search.LetterModeDefault, mode)
	require.Contains(t, text, testResume.Summary)
}

func TestProduce_DefaultModeWithoutResumeFields(t *testing.T) {
	p := NewProducer(nil, zap.NewNop())
	s := search.Search{LetterMode: search.LetterModeDefault}

	text, _, err := p.Produce(context.Background(), s, testVacancy, resume.Resume{})
	require.NoError(t, err)
	require.False(t, strings.Contains(text, "%!"), "template must not leak verbs: %s", text)
	require.Contains(t, text, "Applicant")
}
