// Package transports imports every built-in transport for registration with
// the default registry.
package transports

import (
	_ "github.com/drblury/probeflow/transport/aws"
	_ "github.com/drblury/probeflow/transport/channel"
	_ "github.com/drblury/probeflow/transport/kafka"
	_ "github.com/drblury/probeflow/transport/nats"
	_ "github.com/drblury/probeflow/transport/rabbitmq"
)
