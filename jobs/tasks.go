// Package jobs contains background task definitions and the Asynq worker.
package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
)
