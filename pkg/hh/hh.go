// Package hh defines the port to the HH job platform API. Concrete transport
// lives in the api subpackage; the scheduler and quota guard depend only on
// this interface.
package hh

import (
	"context"
	"time"
)

// Vacancy is the abbreviated listing item returned by a search.
type Vacancy struct {
	ID          string
	Title       string
	EmployerID  string
	Employer    string
	AreaID      string
	Area        string
	URL         string
	PublishedAt time.Time
}

// SalaryInfo as reported on a vacancy detail.
type SalaryInfo struct {
	From     int
	To       int
	Currency string
	Gross    bool
}

// VacancyDetail is the full vacancy, fetched before submitting.
type VacancyDetail struct {
	Vacancy
	EmployerURL    string
	Salary         SalaryInfo
	Experience     string
	Schedule       string
	Employment     string
	Description    string
	Requirement    string
	Responsibility string
}

// SearchResult pages through matching vacancies, most recent first.
type SearchResult struct {
	Items   []Vacancy
	Found   int
	Page    int
	Pages   int
	PerPage int
}

// SearchParams are the platform-side filters for one search request.
type SearchParams struct {
	Text            string
	ExcludeKeywords string
	AreaIDs         []string
	SalaryFrom      int
	Currency        string
	Experience      string
	Schedule        string
	Employment      string
	Specializations []string
	Industries      []string
	Page            int
	PerPage         int
}

// UsageLimits is the platform's own daily application cap and current usage
// for a credential.
type UsageLimits struct {
	DailyLimit int
	DailyUsed  int
}

// Negotiation is one platform-side application with its current state id
// ("viewed", "invitation", "rejection", ...).
type Negotiation struct {
	ID        string
	VacancyID string
	StateID   string
}

// NegotiationPage is one page of the credential's applications.
type NegotiationPage struct {
	Items []Negotiation
	Found int
	Pages int
	Page  int
}

// Client is the boundary to the platform. Every call is authenticated with
// the user's access token and must be bounded by the passed context.
type Client interface {
	SearchVacancies(ctx context.Context, params SearchParams, token string) (SearchResult, error)
	GetVacancy(ctx context.Context, vacancyID, token string) (VacancyDetail, error)
	// SubmitApplication creates a negotiation and returns its platform id.
	SubmitApplication(ctx context.Context, vacancyID, resumeID, message, token string) (string, error)
	GetUsageLimits(ctx context.Context, token string) (UsageLimits, error)
	ListNegotiations(ctx context.Context, token string, page, perPage int) (NegotiationPage, error)
}
