package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

var (
	targetURL    = flag.String("url", "http://localhost:8080", "ingest endpoint URL")
	count        = flag.Int("count", 100, "Number of events to generate")
	interval     = flag.Duration("interval", 100*time.Millisecond, "Interval between batches")
	repositories = flag.String("repositories", "sre-news,frontend-news,ml-news", "Comma-separated list of repository names")
	topics       = flag.String("topics", "kubernetes,react,llm,postgres,golang", "Comma-separated list of topics")
	batchSize    = flag.Int("batch-size", 10, "Number of messages per batch")
	badRatio     = flag.Float64("bad-ratio", 0, "Fraction of messages with corrupt payloads (0..1)")
)

type pushMessage struct {
	MessageID  string            `json:"messageId,omitempty"`
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type pushRequest struct {
	Messages []pushMessage `json:"messages"`
}

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	repos := splitList(*repositories)
	topicList := splitList(*topics)
	if len(repos) == 0 || len(topicList) == 0 {
		log.Fatal("at least one repository and one topic are required")
	}

	log.Printf("Starting news event seeder:")
	log.Printf("  Target URL: %s", *targetURL)
	log.Printf("  Event count: %d", *count)
	log.Printf("  Batch size: %d", *batchSize)
	log.Printf("  Repositories: %v", repos)
	log.Printf("  Topics: %v", topicList)
	log.Printf("  Bad payload ratio: %.2f", *badRatio)

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	successCount := 0
	failCount := 0

	batch := make([]pushMessage, 0, *batchSize)

	for i := 0; i < *count; i++ {
		batch = append(batch, generateMessage(repos, topicList))

		if len(batch) >= *batchSize || i == *count-1 {
			if err := sendBatch(client, *targetURL, batch); err != nil {
				log.Printf("Failed to send batch: %v", err)
				failCount += len(batch)
			} else {
				successCount += len(batch)
				if successCount%50 == 0 {
					log.Printf("Progress: %d/%d events sent", successCount, *count)
				}
			}
			batch = batch[:0]

			if *interval > 0 && i < *count-1 {
				time.Sleep(*interval)
			}
		}
	}

	log.Printf("\nSeeding complete:")
	log.Printf("  Success: %d events", successCount)
	log.Printf("  Failed: %d events", failCount)
}

func splitList(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func generateMessage(repos, topicList []string) pushMessage {
	if *badRatio > 0 && rand.Float64() < *badRatio {
		// Not valid base64, exercises the dead letter path on the server.
		return pushMessage{
			MessageID: uuid.NewString(),
			Data:      "!!not-base64!!",
		}
	}

	topic := topicList[rand.Intn(len(topicList))]
	event := map[string]interface{}{
		"email":          gofakeit.Email(),
		"uuid":           uuid.NewString(),
		"repositoryName": repos[rand.Intn(len(repos))],
		"topic":          topic,
	}
	if rand.Float32() > 0.5 {
		event["prompt"] = fmt.Sprintf("Give me a three sentence digest of this week's %s news.", topic)
	}

	payload, _ := json.Marshal(event)
	return pushMessage{
		MessageID: uuid.NewString(),
		Data:      base64.StdEncoding.EncodeToString(payload),
		Attributes: map[string]string{
			"origin": "seeder",
		},
	}
}

func sendBatch(client *http.Client, baseURL string, messages []pushMessage) error {
	body, err := json.Marshal(pushRequest{Messages: messages})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequest("POST", baseURL+"/publish", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest returned status %d", resp.StatusCode)
	}

	return nil
}
