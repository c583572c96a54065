package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	key := os.Getenv("ADMIN_API_KEY")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter a site URL to monitor (e.g., https://example.com/health): ")
	raw, _ := reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		fmt.Println("Invalid URL.")
		return
	}

	id := checkIDFor(u)
	fmt.Printf("Check id [%s]: ", id)
	if in, _ := reader.ReadString('\n'); strings.TrimSpace(in) != "" {
		id = strings.TrimSpace(in)
	}
	fmt.Print("Critical service? [y/N]: ")
	crit, _ := reader.ReadString('\n')

	body, _ := json.Marshal(map[string]any{
		"id":       id,
		"name":     u.Hostname(),
		"url":      raw,
		"critical": strings.HasPrefix(strings.ToLower(strings.TrimSpace(crit)), "y"),
	})
	req, _ := http.NewRequest(http.MethodPost, api+"/api/checks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		fmt.Printf("Added! Follow it with GET /api/checks/%s/results.\n", id)
		return
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Println("API returned status:", resp.Status, strings.TrimSpace(string(msg)))
}

// checkIDFor derives a readable id from host and path, e.g.
// https://api.example.com/health -> api-example-com-health.
func checkIDFor(u *url.URL) string {
	s := strings.ToLower(u.Hostname() + u.Path)
	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
