// Package audit emite eventos de auditoría del lifecycle de sesiones y
// credenciales. Hoy salen por el logger estructurado con un nombre fijo;
// más adelante se pueden enrutar a un sink externo.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/trustgate/internal/observability/logger"
)

// Event registra un evento de auditoría con campos estructurados.
func Event(ctx context.Context, event string, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+1)
	all = append(all, zap.String("event", event))
	all = append(all, fields...)
	logger.From(ctx).Named("audit").Info("audit event", all...)
}
