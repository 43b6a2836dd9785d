package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"ideaforge/internal/ai"
	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/ideas"
	"ideaforge/internal/prediction"
	"ideaforge/internal/proxy"
	"ideaforge/internal/replicate"
)

// inProcessEndpoint is never dialled; proxy.Transport serves it.
const inProcessEndpoint = "http://relay.internal/api/replicate"

func newRelay(s config.Settings) (*proxy.Handler, error) {
	upstream, err := replicate.NewHTTPClient(proxyURL, 0)
	if err != nil {
		return nil, err
	}
	return proxy.NewHandler(replicate.NewClient(s.Replicate.BaseURL, upstream), config.Token), nil
}

// newRecommender wires the prediction client to endpoint, or to relay in
// process when endpoint is empty. store may be nil.
func newRecommender(s config.Settings, endpoint string, relay http.Handler, store *db.Store) (*ai.Recommender, error) {
	var httpClient *http.Client
	if endpoint == "" {
		endpoint = inProcessEndpoint
		httpClient = &http.Client{Transport: proxy.Transport(relay)}
	} else {
		c, err := replicate.NewHTTPClient(proxyURL, 0)
		if err != nil {
			return nil, err
		}
		httpClient = c
	}

	client := prediction.New(endpoint, httpClient, s.Replicate.Model)
	s.Apply(client)

	opts := []ai.Option{ai.WithCache(s.Cache.Size, s.Cache.TTL)}
	if store != nil {
		opts = append(opts, ai.WithHistory(store))
	}
	return ai.NewRecommender(ai.NewPredictionProvider(client), opts...), nil
}

// openHistory opens the configured store. Failure only disables history.
func openHistory(s config.Settings) *db.Store {
	store, err := db.Open(s.History.DSN)
	if err != nil {
		log.Printf("history: disabled: %v", err)
		return nil
	}
	return store
}

func printProblem(w io.Writer, p *ai.Problem) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "Problem: %s (%s)\n", p.Title, p.Code)
	fmt.Fprintf(w, "  %s\n", p.Description)
	if p.Detail != "" {
		fmt.Fprintf(w, "  Detail: %s\n", p.Detail)
	}
	if p.RetryAfter > 0 {
		fmt.Fprintf(w, "  Retry after %ds\n", p.RetryAfter)
	}
	if p.RawOutput != "" {
		fmt.Fprintf(w, "  Raw model output:\n%s\n", indent(p.RawOutput, "    "))
	}
	fmt.Fprintln(w)
}

func printApplications(w io.Writer, apps []ideas.Application) {
	for _, app := range apps {
		fmt.Fprintf(w, "----------------------------------------\n")
		title := app.Title
		if app.Generated {
			title += " [generated]"
		}
		fmt.Fprintf(w, "%s\n", title)
		fmt.Fprintf(w, "ID: %s\n", app.ID)
		fmt.Fprintf(w, "%s\n", app.Description)
		if app.Prompt != "" {
			fmt.Fprintf(w, "Prompt:\n%s\n", indent(app.Prompt, "  "))
		}
		for _, ex := range app.Examples {
			fmt.Fprintf(w, "  - %s\n", ex)
		}
	}
}

func printCategories(w io.Writer, categories []ideas.Category) {
	for _, c := range categories {
		fmt.Fprintf(w, "\n== %s ==\n", c.Name)
		printApplications(w, c.Applications)
	}
	fmt.Fprintf(w, "----------------------------------------\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
