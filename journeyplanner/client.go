// Package journeyplanner talks to Entur's journey-planner v3 GraphQL API.
// It supplies authoritative line modes, quay coordinates, departure boards
// and trip geometry for the rail and airport shapes.
package journeyplanner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/upstream"
)

const (
	queryTimeout = 15 * time.Second
	tripTimeout  = 25 * time.Second
	queryRetries = 2
)

type Client struct {
	up          *upstream.Client
	url         string
	batchSize   int
	concurrency int
}

func NewClient(up *upstream.Client, url string, batchSize, concurrency int) *Client {
	if batchSize <= 0 {
		batchSize = 25
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Client{up: up, url: url, batchSize: batchSize, concurrency: concurrency}
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// query posts a GraphQL document and returns the raw data object. A non-empty
// errors array fails the whole request; the journey planner does not return
// partial data we can trust.
func (c *Client) query(ctx context.Context, q string, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(graphQLRequest{Query: q})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	resp, err := c.up.PostJSON(ctx, c.url, body, upstream.Options{Timeout: timeout, Retries: queryRetries})
	if err != nil {
		return nil, fmt.Errorf("journey planner: %w", err)
	}
	if _, err := upstream.RequireOK(c.url, resp); err != nil {
		return nil, err
	}

	var gr graphQLResponse
	if err := json.Unmarshal(resp.Body, &gr); err != nil {
		return nil, fmt.Errorf("decode journey planner response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return nil, fmt.Errorf("journey planner: %s", gr.Errors[0].Message)
	}
	if gr.Data == nil {
		return nil, fmt.Errorf("journey planner: empty data")
	}
	return gr.Data, nil
}

// QuayCoords resolves quay IDs to coordinates using aliased quay queries in
// capped batches, a bounded number of them in flight at once. Quays the
// planner does not know are absent from the result.
func (c *Client) QuayCoords(ctx context.Context, quayIDs []string) (map[string]geo.LatLon, error) {
	var batches [][]string
	for start := 0; start < len(quayIDs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(quayIDs) {
			end = len(quayIDs)
		}
		batches = append(batches, quayIDs[start:end])
	}

	out := make(map[string]geo.LatLon, len(quayIDs))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	sem := make(chan struct{}, c.concurrency)
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			coords, err := c.quayBatch(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for id, pos := range coords {
				out[id] = pos
			}
		}(batch)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (c *Client) quayBatch(ctx context.Context, batch []string) (map[string]geo.LatLon, error) {
	var b strings.Builder
	b.WriteString("query {\n")
	for i, id := range batch {
		fmt.Fprintf(&b, "q%d: quay(id: %q) { latitude longitude }\n", i, id)
	}
	b.WriteString("}")

	data, err := c.query(ctx, b.String(), queryTimeout)
	if err != nil {
		return nil, err
	}
	var aliased map[string]*struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &aliased); err != nil {
		return nil, fmt.Errorf("decode quay batch: %w", err)
	}
	out := make(map[string]geo.LatLon, len(batch))
	for i, id := range batch {
		q := aliased[fmt.Sprintf("q%d", i)]
		if q == nil || q.Latitude == nil || q.Longitude == nil {
			continue
		}
		out[id] = geo.LatLon{Lat: *q.Latitude, Lon: *q.Longitude}
	}
	return out, nil
}

// LineModes resolves line references to their declared transport mode with
// aliased line queries. Satisfies mode.LineModeLookup.
func (c *Client) LineModes(ctx context.Context, lineRefs []string) (map[string]mode.Mode, error) {
	var b strings.Builder
	b.WriteString("query {\n")
	for i, ref := range lineRefs {
		fmt.Fprintf(&b, "l%d: line(id: %q) { transportMode }\n", i, ref)
	}
	b.WriteString("}")

	data, err := c.query(ctx, b.String(), queryTimeout)
	if err != nil {
		return nil, err
	}
	var aliased map[string]*struct {
		TransportMode string `json:"transportMode"`
	}
	if err := json.Unmarshal(data, &aliased); err != nil {
		return nil, fmt.Errorf("decode line batch: %w", err)
	}

	out := make(map[string]mode.Mode, len(lineRefs))
	for i, ref := range lineRefs {
		l := aliased[fmt.Sprintf("l%d", i)]
		if l == nil {
			continue
		}
		if m := mode.ParseAuthoritative(l.TransportMode); m != mode.Unknown {
			out[ref] = m
		}
	}
	return out, nil
}
