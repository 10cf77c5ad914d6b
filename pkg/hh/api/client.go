// Package api implements the hh.Client port over the HH HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pavel8512/hhpilot/pkg/hh"
)

// Client talks to the HH REST API. Every request carries the user's bearer
// token and the configured User-Agent (the platform rejects requests
// without one).
type Client struct {
	BaseURL   string
	UserAgent string
	httpDo    *http.Client
}

func New(baseURL, userAgent string) *Client {
	if baseURL == "" {
		baseURL = "https://api.hh.ru"
	}
	if userAgent == "" {
		userAgent = "hhpilot/1.0"
	}
	return &Client{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		httpDo: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HH timestamps come without a colon in the zone offset.
const hhTimeLayout = "2006-01-02T15:04:05-0700"

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(hhTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

type apiError struct {
	Description string `json:"description"`
	Errors      []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"errors"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, token string, out any) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, token, out)
}

func (c *Client) do(req *http.Request, token string, out any) error {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.httpDo.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		desc := apiErr.Description
		if desc == "" && len(apiErr.Errors) > 0 {
			desc = apiErr.Errors[0].Value
		}
		return fmt.Errorf("hh api %s: http %d: %s", req.URL.Path, resp.StatusCode, desc)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type vacancyItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Employer struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"alternate_url"`
	} `json:"employer"`
	Area struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"area"`
	AlternateURL string `json:"alternate_url"`
	PublishedAt  string `json:"published_at"`
}

func (v vacancyItem) toDomain() hh.Vacancy {
	return hh.Vacancy{
		ID:          v.ID,
		Title:       v.Name,
		EmployerID:  v.Employer.ID,
		Employer:    v.Employer.Name,
		AreaID:      v.Area.ID,
		Area:        v.Area.Name,
		URL:         v.AlternateURL,
		PublishedAt: parseTime(v.PublishedAt),
	}
}

func (c *Client) SearchVacancies(ctx context.Context, params hh.SearchParams, token string) (hh.SearchResult, error) {
	q := url.Values{}
	if params.Text != "" {
		q.Set("text", params.Text)
	}
	if params.ExcludeKeywords != "" {
		q.Set("excluded_text", params.ExcludeKeywords)
	}
	if len(params.AreaIDs) > 0 {
		q.Set("area", strings.Join(params.AreaIDs, ","))
	}
	if params.SalaryFrom > 0 {
		q.Set("salary", strconv.Itoa(params.SalaryFrom))
	}
	if params.Currency != "" {
		q.Set("currency", params.Currency)
	}
	if params.Experience != "" {
		q.Set("experience", params.Experience)
	}
	if params.Schedule != "" {
		q.Set("schedule", params.Schedule)
	}
	if params.Employment != "" {
		q.Set("employment", params.Employment)
	}
	if len(params.Specializations) > 0 {
		q.Set("specialization", strings.Join(params.Specializations, ","))
	}
	if len(params.Industries) > 0 {
		q.Set("industry", strings.Join(params.Industries, ","))
	}
	q.Set("page", strconv.Itoa(params.Page))
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	q.Set("per_page", strconv.Itoa(perPage))
	// Most recent first, so new postings get responses before stale ones.
	q.Set("order_by", "publication_time")

	var body struct {
		Items   []vacancyItem `json:"items"`
		Found   int           `json:"found"`
		Pages   int           `json:"pages"`
		Page    int           `json:"page"`
		PerPage int           `json:"per_page"`
	}
	if err := c.get(ctx, "/vacancies", q, token, &body); err != nil {
		return hh.SearchResult{}, fmt.Errorf("search vacancies: %w", err)
	}
	res := hh.SearchResult{Found: body.Found, Pages: body.Pages, Page: body.Page, PerPage: body.PerPage}
	for _, it := range body.Items {
		res.Items = append(res.Items, it.toDomain())
	}
	return res, nil
}

func (c *Client) GetVacancy(ctx context.Context, vacancyID, token string) (hh.VacancyDetail, error) {
	var body struct {
		vacancyItem
		Salary *struct {
			From     int    `json:"from"`
			To       int    `json:"to"`
			Currency string `json:"currency"`
			Gross    bool   `json:"gross"`
		} `json:"salary"`
		Experience struct {
			Name string `json:"name"`
		} `json:"experience"`
		Schedule struct {
			Name string `json:"name"`
		} `json:"schedule"`
		Employment struct {
			Name string `json:"name"`
		} `json:"employment"`
		Description    string `json:"description"`
		Requirement    string `json:"requirement"`
		Responsibility string `json:"responsibility"`
	}
	if err := c.get(ctx, "/vacancies/"+url.PathEscape(vacancyID), nil, token, &body); err != nil {
		return hh.VacancyDetail{}, fmt.Errorf("get vacancy %s: %w", vacancyID, err)
	}
	detail := hh.VacancyDetail{
		Vacancy:        body.vacancyItem.toDomain(),
		EmployerURL:    body.Employer.URL,
		Experience:     body.Experience.Name,
		Schedule:       body.Schedule.Name,
		Employment:     body.Employment.Name,
		Description:    body.Description,
		Requirement:    body.Requirement,
		Responsibility: body.Responsibility,
	}
	if body.Salary != nil {
		detail.Salary = hh.SalaryInfo{
			From:     body.Salary.From,
			To:       body.Salary.To,
			Currency: body.Salary.Currency,
			Gross:    body.Salary.Gross,
		}
	}
	return detail, nil
}

func (c *Client) SubmitApplication(ctx context.Context, vacancyID, resumeID, message, token string) (string, error) {
	payload := map[string]string{
		"vacancy_id": vacancyID,
		"resume_id":  resumeID,
		"message":    message,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/negotiations", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	var body struct {
		ID string `json:"id"`
	}
	if err := c.do(req, token, &body); err != nil {
		return "", fmt.Errorf("submit application to %s: %w", vacancyID, err)
	}
	return body.ID, nil
}

func (c *Client) GetUsageLimits(ctx context.Context, token string) (hh.UsageLimits, error) {
	var me struct {
		DailyLimit int `json:"daily_responses_limit"`
		DailyUsed  int `json:"daily_responses_count"`
	}
	if err := c.get(ctx, "/me", nil, token, &me); err != nil {
		return hh.UsageLimits{}, fmt.Errorf("get usage limits: %w", err)
	}
	limits := hh.UsageLimits{DailyLimit: me.DailyLimit, DailyUsed: me.DailyUsed}
	if limits.DailyLimit == 0 {
		limits.DailyLimit = 200 // platform default when /me omits the field
	}
	return limits, nil
}

func (c *Client) ListNegotiations(ctx context.Context, token string, page, perPage int) (hh.NegotiationPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if perPage <= 0 {
		perPage = 20
	}
	q.Set("per_page", strconv.Itoa(perPage))

	var body struct {
		Items []struct {
			ID      string `json:"id"`
			Vacancy struct {
				ID string `json:"id"`
			} `json:"vacancy"`
			State struct {
				ID string `json:"id"`
			} `json:"state"`
		} `json:"items"`
		Found int `json:"found"`
		Pages int `json:"pages"`
		Page  int `json:"page"`
	}
	if err := c.get(ctx, "/negotiations", q, token, &body); err != nil {
		return hh.NegotiationPage{}, fmt.Errorf("list negotiations: %w", err)
	}
	out := hh.NegotiationPage{Found: body.Found, Pages: body.Pages, Page: body.Page}
	for _, it := range body.Items {
		out.Items = append(out.Items, hh.Negotiation{ID: it.ID, VacancyID: it.Vacancy.ID, StateID: it.State.ID})
	}
	return out, nil
}
