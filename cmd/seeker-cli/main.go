package main

import (
	"context"

	"scholar-seeker-ai/cmd/seeker-cli/commands"
	"scholar-seeker-ai/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "seeker-cli")
	telemetry.InitSlog(false)
	commands.ExecuteContext(context.Background())
}
