// Command analyzetranscript prints keyword analysis and MAST diagnosis for a saved
// debate transcript.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/zhouzirui/mad-arena/backend/internal/analysis/keywords"
	"github.com/zhouzirui/mad-arena/backend/internal/analysis/mast"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/service/diagnosis"
)

func main() {
	log.SetFlags(0)

	in := flag.String("in", "debate_history.json", "transcript file: {\"messages\":[...]} or a bare message array")
	debaterList := flag.String("debaters", "", "comma separated debater names, default: debaters found in the transcript")
	asJSON := flag.Bool("json", false, "print the raw JSON result")
	diagnose := flag.Bool("diagnose", false, "also run the heuristic MAST diagnosis per round")
	flag.Parse()

	messages, err := loadTranscript(*in)
	if err != nil {
		log.Fatalf("failed to load transcript: %v", err)
	}

	debaters := splitNames(*debaterList)
	if len(debaters) == 0 {
		debaters = keywords.DebatersInOrder(messages)
	}

	result := keywords.Analyze(messages, debaters)
	if result == nil {
		log.Fatalf("no debater messages found in %s", *in)
	}

	var reports []mast.Report
	if *diagnose {
		svc, err := diagnosis.NewService(context.Background(), nil, diagnosis.Config{})
		if err != nil {
			log.Fatalf("failed to create diagnosis service: %v", err)
		}
		reports, err = svc.DiagnoseDebate(context.Background(), messages, debaters)
		if err != nil {
			log.Fatalf("diagnosis failed: %v", err)
		}
	}

	if *asJSON {
		out := map[string]any{"keywords": result}
		if *diagnose {
			out["diagnosis"] = reports
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatalf("failed to encode result: %v", err)
		}
		return
	}

	printKeywords(os.Stdout, result, debaters)
	if *diagnose {
		printDiagnosis(os.Stdout, reports)
	}
}

// loadTranscript accepts {"messages": [...]} or a bare array of messages.
func loadTranscript(path string) ([]debate.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTranscript(data)
}

func parseTranscript(data []byte) ([]debate.Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("transcript is empty")
	}

	var messages []debate.Message
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &messages); err != nil {
			return nil, fmt.Errorf("parse message array: %w", err)
		}
		return messages, nil
	}

	var wrapped struct {
		Messages []debate.Message `json:"messages"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
		return nil, fmt.Errorf("parse transcript object: %w", err)
	}
	return wrapped.Messages, nil
}

func splitNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func printKeywords(w io.Writer, result *keywords.Result, debaters []string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "OVERALL")
	writeKeywords(tw, result.OverallKeywords)

	for _, id := range debaters {
		fmt.Fprintf(tw, "\n%s\n", id)
		writeKeywords(tw, result.KeywordsByDebater[id])
	}

	fmt.Fprintln(tw, "\nTIMELINE")
	for _, round := range result.Timeline {
		for _, id := range debaters {
			terms := make([]string, 0, len(round.KeywordsByDebater[id]))
			for _, kw := range round.KeywordsByDebater[id] {
				terms = append(terms, kw.Term)
			}
			fmt.Fprintf(tw, "round %d\t%s\t%s\n", round.Round, id, strings.Join(terms, ", "))
		}
	}
}

func writeKeywords(w io.Writer, list []keywords.Keyword) {
	if len(list) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, kw := range list {
		fmt.Fprintf(w, "  %s\t%.4f\n", kw.Term, kw.Score)
	}
}

func printDiagnosis(w io.Writer, reports []mast.Report) {
	fmt.Fprintln(w, "\nDIAGNOSIS")
	for _, report := range reports {
		fmt.Fprintf(w, "round %d  health %d  %s\n", report.Round, report.HealthScore, report.Summary)
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  %s %s (%s): %s\n", f.ModeID, f.ModeName, f.Agent, f.Reasoning)
		}
	}
}
