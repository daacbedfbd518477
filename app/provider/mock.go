package provider

import (
	"context"
	"strings"

	"github.com/mattanmr/job-posting-aggregator/app/jobs"
)

const MockSource = "Mock Data"

var mockPostings = []jobs.Record{
	{
		Title:       "Senior Python Developer",
		Company:     "Tech Corp",
		Location:    "San Francisco, CA",
		Description: "We are looking for an experienced Python developer to join our team. Requirements: 5+ years of experience with Python, FastAPI, and cloud technologies.",
		URL:         "https://example.com/job/1",
	},
	{
		Title:       "Frontend React Engineer",
		Company:     "StartUp Inc",
		Location:    "New York, NY",
		Description: "Seeking a talented React developer for our innovative web platform. Experience with TypeScript and Vite is a plus.",
		URL:         "https://example.com/job/2",
	},
	{
		Title:       "Full Stack Developer",
		Company:     "Enterprise Solutions",
		Location:    "Remote",
		Description: "Join our team as a Full Stack Developer. Work with Python backend and React frontend. Must have 3+ years of experience.",
		URL:         "https://example.com/job/3",
	},
	{
		Title:       "DevOps Engineer",
		Company:     "Cloud Systems Ltd",
		Location:    "Austin, TX",
		Description: "Looking for a DevOps Engineer experienced with Docker, Kubernetes, and CI/CD pipelines.",
		URL:         "https://example.com/job/4",
	},
	{
		Title:       "Junior Python Developer",
		Company:     "Learning Labs",
		Location:    "Boston, MA",
		Description: "Great opportunity for junior developers to grow. We provide mentorship and training in Python web development.",
		URL:         "https://example.com/job/5",
	},
}

// Mock serves a fixed set of postings, matched case-insensitively on
// title, description or company.
type Mock struct {
	postings []jobs.Record
}

func NewMock() *Mock {
	return &Mock{postings: mockPostings}
}

func (m *Mock) Name() string {
	return "mock"
}

func (m *Mock) Search(ctx context.Context, q Query) ([]jobs.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(q.Keyword))
	results := make([]jobs.Record, 0)
	if q.Page > 1 {
		return results, nil
	}

	for _, p := range m.postings {
		if strings.Contains(strings.ToLower(p.Title), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) ||
			strings.Contains(strings.ToLower(p.Company), needle) {
			p.Source = MockSource
			results = append(results, p)
		}
	}

	return jobs.NormalizeAll(results), nil
}
