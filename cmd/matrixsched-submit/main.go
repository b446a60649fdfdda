// Command matrixsched-submit is an interactive wizard that collects a
// train, journey date, and credentials, then submits them to a running
// scheduler and polls until the matrix is ready — adapted from the
// teacher's interactive setup form (internal/tui/setup.go) using huh
// instead of the teacher's hand-rolled per-step bubbletea model.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bdrail/matrixsched/internal/tui"
	"github.com/charmbracelet/huh"
)

type submitRequest struct {
	Train     string `json:"train"`
	Date      string `json:"date"`
	AuthToken string `json:"auth_token"`
	DeviceKey string `json:"device_key"`
}

func main() {
	var baseURL string
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of a running matrixsched server")
	flag.Parse()

	var train, date, token, deviceKey string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Train").
				Description("e.g. \"Sundarban Express (726)\"").
				Value(&train).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("train is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Journey date").
				Description("DD-MMM-YYYY, e.g. 15-Nov-2024").
				Value(&date),
			huh.NewInput().
				Title("Auth token").
				Value(&token).
				EchoMode(huh.EchoModePassword),
			huh.NewInput().
				Title("Device key").
				Value(&deviceKey).
				EchoMode(huh.EchoModePassword),
		),
	).WithTheme(tui.NeonTheme())

	if err := form.Run(); err != nil {
		fmt.Println("cancelled:", err)
		os.Exit(1)
	}

	body, err := json.Marshal(submitRequest{Train: train, Date: date, AuthToken: token, DeviceKey: deviceKey})
	if err != nil {
		fmt.Println("error encoding request:", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(baseURL+"/submit", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Println("submit failed:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var submitResp struct {
		RequestID string `json:"request_id"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		fmt.Println("error decoding response:", err)
		os.Exit(1)
	}
	if submitResp.RequestID == "" {
		fmt.Println("submit rejected:", submitResp.Error)
		os.Exit(1)
	}

	fmt.Println("submitted:", submitResp.RequestID)
	pollUntilDone(client, baseURL, submitResp.RequestID)
}

func pollUntilDone(client *http.Client, baseURL, id string) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		client.Post(baseURL+"/heartbeat/"+id, "application/json", nil)

		resp, err := client.Get(baseURL + "/status/" + id)
		if err != nil {
			fmt.Println("status poll failed:", err)
			continue
		}
		var status struct {
			Status        string `json:"status"`
			Position      int    `json:"position"`
			EstimatedTime int    `json:"estimated_time"`
			ErrorMessage  string `json:"errorMessage"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			fmt.Println("error decoding status:", err)
			continue
		}

		switch status.Status {
		case "queued":
			fmt.Printf("queued: position %d, est. %ds\n", status.Position, status.EstimatedTime)
		case "processing":
			fmt.Println("processing...")
		case "completed":
			fetchResult(client, baseURL, id)
			return
		case "failed":
			fmt.Println("failed:", status.ErrorMessage)
			return
		}
	}
}

func fetchResult(client *http.Client, baseURL, id string) {
	resp, err := client.Get(baseURL + "/result/" + id)
	if err != nil {
		fmt.Println("result fetch failed:", err)
		return
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		fmt.Println("error reading result:", err)
		return
	}
	fmt.Println(buf.String())
}
