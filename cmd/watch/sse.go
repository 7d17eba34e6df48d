package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// readEvents calls fn with the data of every event in an event stream.
// Comment lines are heartbeats and are skipped.
func readEvents(r io.Reader, fn func(data string)) error {
	scanner := bufio.NewScanner(r)
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(strings.Join(data, "\n"))
				data = data[:0]
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func watchSSE(ctx context.Context, baseURL, cookieName string, articleID, clientID uuid.UUID, fn func(string)) error {
	url := fmt.Sprintf("%s/api/sse/like-count/%s", strings.TrimSuffix(baseURL, "/"), articleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: clientID.String()})

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("stream refused: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
