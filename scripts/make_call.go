// Command make_call triggers outbound probe calls against a running
// server.
//
//	go run scripts/make_call.go                 list scenarios
//	go run scripts/make_call.go -scenario 0     run scenario 0
//	go run scripts/make_call.go -scenario all   run every scenario
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

type scenarioInfo struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "probe server base URL")
	scenarioArg := flag.String("scenario", "", "scenario index or 'all'")
	delay := flag.Duration("delay", 30*time.Second, "pause between calls when running all")
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}

	scenarios, err := fetchScenarios(client, *server)
	if err != nil {
		fmt.Println("server not reachable:", err)
		fmt.Println("start it first: go run ./cmd/probecall -config config.yaml")
		os.Exit(1)
	}

	if *scenarioArg == "" {
		fmt.Println("\nAvailable scenarios:")
		for _, s := range scenarios {
			fmt.Printf("  %2d: %s\n", s.Index, s.Name)
		}
		fmt.Println("\nUsage:")
		fmt.Println("  make_call -scenario <number>       run one scenario")
		fmt.Println("  make_call -scenario all            run all scenarios")
		fmt.Println("  make_call -scenario all -delay 45s custom delay between calls")
		return
	}

	if *scenarioArg == "all" {
		for i, s := range scenarios {
			fmt.Printf("\n[%d/%d] %s\n", i+1, len(scenarios), s.Name)
			makeCall(client, *server, s.Index)
			if i < len(scenarios)-1 {
				fmt.Printf("  waiting %s before next call...\n", *delay)
				time.Sleep(*delay)
			}
		}
		fmt.Printf("\nall %d calls placed\n", len(scenarios))
		return
	}

	idx, err := strconv.Atoi(*scenarioArg)
	if err != nil {
		fmt.Println("scenario must be a number or 'all', got", *scenarioArg)
		os.Exit(1)
	}
	makeCall(client, *server, idx)
}

func fetchScenarios(client *http.Client, server string) ([]scenarioInfo, error) {
	resp, err := client.Get(server + "/scenarios")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var scenarios []scenarioInfo
	if err := json.NewDecoder(resp.Body).Decode(&scenarios); err != nil {
		return nil, err
	}
	return scenarios, nil
}

func makeCall(client *http.Client, server string, index int) {
	resp, err := client.Post(fmt.Sprintf("%s/calls/%d", server, index), "application/json", nil)
	if err != nil {
		fmt.Println("  call error:", err)
		return
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		fmt.Println("  error:", body["error"])
		return
	}
	fmt.Printf("  call placed — %v\n", body["scenario"])
	fmt.Printf("  call id: %v\n", body["call_control_id"])
}
