// Package main demonstrates the client SDK end to end: request an echo job,
// wait for it to finish, and print its outputs.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mokemokechicken/spr-adbi/internal/client"
	"github.com/mokemokechicken/spr-adbi/internal/config"
	"github.com/mokemokechicken/spr-adbi/internal/jobmodel"
	"github.com/mokemokechicken/spr-adbi/internal/logging"
	"github.com/mokemokechicken/spr-adbi/internal/queueio"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := logging.Build("info")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	queue, err := queueio.NewSQS(ctx, cfg.QueueName)
	if err != nil {
		return fmt.Errorf("echoclient: connect to queue: %w", err)
	}

	c := client.New(cfg.BaseDir, queue, logger)

	job, err := c.Request(ctx, "test.echo", client.RequestOptions{
		Args:  []string{"hello", time.Now().Format(time.RFC3339)},
		Stdin: []byte("hello from echoclient\n"),
	})
	if err != nil {
		return fmt.Errorf("echoclient: request: %w", err)
	}

	status, err := job.Wait(ctx, client.WaitOptions{})
	if err != nil {
		return fmt.Errorf("echoclient: wait: %w", err)
	}
	if status != jobmodel.StatusSuccess {
		fmt.Printf("finish %s\n", status)
		return nil
	}

	fmt.Println("finish success")
	output, err := job.GetOutput(ctx)
	if err != nil {
		return fmt.Errorf("echoclient: get output: %w", err)
	}
	for name, data := range output {
		fmt.Println(name)
		fmt.Println(string(data))
		fmt.Println()
	}
	return nil
}
