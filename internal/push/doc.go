// Package push emits new-message notifications toward the external push
// delivery worker. Tasks go onto a Redis-backed asynq queue; deployments
// without push configured get the no-op notifier.
package push
