package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/sse"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// EventBus mirrors events to other instances; the redis client implements it.
type EventBus interface {
	Publish(ctx context.Context, msg sse.Message) error
}

type stageNotifier struct {
	log *logger.Logger
	hub *sse.Hub
	bus EventBus
}

// NewStageNotifier builds the SSE-backed notifier the pipeline publishes
// through. bus may be nil when running a single instance.
func NewStageNotifier(baseLog *logger.Logger, hub *sse.Hub, bus EventBus) pipeline.StageNotifier {
	return &stageNotifier{
		log: baseLog.With("service", "StageNotifier"),
		hub: hub,
		bus: bus,
	}
}

func (n *stageNotifier) emit(msg sse.Message) {
	n.hub.Broadcast(msg)
	if n.bus != nil {
		if err := n.bus.Publish(context.Background(), msg); err != nil {
			n.log.Warn("event bus publish failed", "channel", msg.Channel, "event", msg.Event, "error", err)
		}
	}
}

func (n *stageNotifier) StageStarted(task *types.StageTask) {
	n.emit(sse.Message{
		Channel: task.CourseID.String(),
		Event:   sse.EventStageStarted,
		Data: map[string]any{
			"task_id": task.ID,
			"stage":   task.Stage,
			"attempt": task.Attempt,
		},
	})
}

func (n *stageNotifier) StageProgress(courseID uuid.UUID, stage types.Stage, progress int, step string) {
	n.emit(sse.Message{
		Channel: courseID.String(),
		Event:   sse.EventStageProgress,
		Data: map[string]any{
			"stage":    stage,
			"progress": progress,
			"step":     step,
		},
	})
}

func (n *stageNotifier) StageFailed(courseID uuid.UUID, stage types.Stage, errorMessage string) {
	n.emit(sse.Message{
		Channel: courseID.String(),
		Event:   sse.EventStageFailed,
		Data: map[string]any{
			"stage": stage,
			"error": errorMessage,
		},
	})
}

func (n *stageNotifier) StageDone(courseID uuid.UUID, stage types.Stage) {
	n.emit(sse.Message{
		Channel: courseID.String(),
		Event:   sse.EventStageDone,
		Data: map[string]any{
			"stage": stage,
		},
	})
}
