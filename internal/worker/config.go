package worker

type Config struct {
	NumWorkers int `envconfig:"WORKERS" default:"4" validate:"gte=1"`
	// QueueSize bounds the in-memory queue used when no broker is configured.
	QueueSize int `envconfig:"QUEUE_SIZE" default:"1024" validate:"gte=1"`
}
