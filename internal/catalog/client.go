// Package catalog provides a read-only client for the external content
// catalog (learning paths, courses, tutorials).
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// LearningPath is one selectable learning track.
type LearningPath struct {
	ID   string `json:"learning_path_id"`
	Name string `json:"learning_path_name"`
}

// Course is one course inside a learning path.
type Course struct {
	ID           string `json:"course_id"`
	PathID       string `json:"learning_path_id"`
	Name         string `json:"course_name"`
	Level        string `json:"course_level_str"`
	HoursToStudy int    `json:"hours_to_study"`
}

// Tutorial is one tutorial attached to a course.
type Tutorial struct {
	ID       string `json:"tutorial_id"`
	CourseID string `json:"course_id"`
	Name     string `json:"tutorial_name"`
	URL      string `json:"tutorial_url,omitempty"`
}

// RoadmapStats summarizes a roadmap's workload.
type RoadmapStats struct {
	TotalCourses int `json:"totalCourses"`
	TotalHours   int `json:"totalHours"`
}

// Roadmap aggregates a path with its ordered courses.
type Roadmap struct {
	PathName string       `json:"pathName"`
	PathID   string       `json:"pathId"`
	Courses  []Course     `json:"courses"`
	Stats    RoadmapStats `json:"stats"`
}

// Config holds catalog client configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 5 * time.Second,
	}
}

// Client queries the content catalog over its REST interface.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a catalog client. The request timeout bounds every
// catalog call so an upstream outage can never hang the reply path.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().RequestTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// get issues one authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request %s: %w", path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog request %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response %s: %w", path, err)
	}
	return nil
}

// ListPaths returns all learning paths. Any failure degrades to an empty
// list: a catalog outage must never block onboarding.
func (c *Client) ListPaths(ctx context.Context) []LearningPath {
	q := url.Values{}
	q.Set("select", "*")

	var paths []LearningPath
	if err := c.get(ctx, "/rest/v1/learning_paths", q, &paths); err != nil {
		c.logger.Warn("catalog path listing failed, degrading to empty list", "error", err)
		return []LearningPath{}
	}
	if paths == nil {
		paths = []LearningPath{}
	}
	return paths
}

// PathNames returns the display names of all learning paths, for use as
// quick-reply options. Degrades to empty like ListPaths.
func (c *Client) PathNames(ctx context.Context) []string {
	paths := c.ListPaths(ctx)
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, p.Name)
	}
	return names
}

// GetRoadmap builds the roadmap aggregate for one learning path. Returns
// (nil, nil) when the path does not exist.
func (c *Client) GetRoadmap(ctx context.Context, pathID string) (*Roadmap, error) {
	q := url.Values{}
	q.Set("learning_path_id", "eq."+pathID)
	q.Set("select", "*")

	var paths []LearningPath
	if err := c.get(ctx, "/rest/v1/learning_paths", q, &paths); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	info := paths[0]

	q = url.Values{}
	q.Set("learning_path_id", "eq."+pathID)
	q.Set("select", "*")
	q.Set("order", "course_level_str.asc")

	var courses []Course
	if err := c.get(ctx, "/rest/v1/courses", q, &courses); err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []Course{}
	}

	totalHours := 0
	for _, course := range courses {
		totalHours += course.HoursToStudy
	}

	return &Roadmap{
		PathName: info.Name,
		PathID:   info.ID,
		Courses:  courses,
		Stats: RoadmapStats{
			TotalCourses: len(courses),
			TotalHours:   totalHours,
		},
	}, nil
}

// TutorialsByCourse returns all tutorials for one course. Degrades to an
// empty list on failure, matching the catalog policy.
func (c *Client) TutorialsByCourse(ctx context.Context, courseID string) []Tutorial {
	q := url.Values{}
	q.Set("course_id", "eq."+courseID)
	q.Set("select", "*")

	var tutorials []Tutorial
	if err := c.get(ctx, "/rest/v1/tutorials", q, &tutorials); err != nil {
		c.logger.Warn("catalog tutorial listing failed, degrading to empty list", "course_id", courseID, "error", err)
		return []Tutorial{}
	}
	if tutorials == nil {
		tutorials = []Tutorial{}
	}
	return tutorials
}
