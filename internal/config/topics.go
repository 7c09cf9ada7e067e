package config

const (
	// TopicCompletion is the NSQ topic for knowledge-graph completion tasks.
	TopicCompletion = "completion.task"

	// ChannelWorker is the consumer channel for the background worker.
	ChannelWorker = "worker"
)
