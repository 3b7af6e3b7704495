package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// queue is a topic with its subscription of the same name
type queue struct {
	name        string
	ackDeadline time.Duration
}

var queues = []queue{
	// An export can last several minutes per country
	{name: "exporter-requests", ackDeadline: 600 * time.Second},
	{name: "exporter-results", ackDeadline: 10 * time.Second},
}

func main() {
	ctx := context.Background()

	emulatorHost := flag.String("host", "localhost:8085", "address of the emulator")
	projectID := flag.String("project", "geocube-emulator", "emulator project")
	flag.Parse()

	os.Setenv("PUBSUB_EMULATOR_HOST", *emulatorHost)

	log.Print("New client for project " + *projectID)
	client, err := pubsub.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("pubsub.NewClient: %v", err)
	}
	defer client.Close()

	for _, q := range queues {
		log.Print("Create Topic : " + q.name)
		topic, err := client.CreateTopic(ctx, q.name)
		if err != nil {
			if status.Code(err) != codes.AlreadyExists {
				log.Fatalf("pubsub.CreateTopic: %v", err)
			}
			topic = client.Topic(q.name)
		}

		log.Print("Create Subscription : " + q.name)
		if _, err = client.CreateSubscription(ctx, q.name, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: q.ackDeadline,
		}); err != nil && status.Code(err) != codes.AlreadyExists {
			log.Fatalf("CreateSubscription: %v", err)
		}
	}

	log.Print("Done!")
}
