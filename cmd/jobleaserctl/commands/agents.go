package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/urfave/cli/v3"
)

// AgentCreateAction registers an agent.
func AgentCreateAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	return createAgent(ctx, app.Store, out(cmd), cmd.String("id"), cmd.String("secret"))
}

// AgentListAction prints every agent and its login state.
func AgentListAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	return listAgents(ctx, app.Store, out(cmd))
}

func createAgent(ctx context.Context, agents store.AgentStore, w io.Writer, agentID, secret string) error {
	agent, err := store.NewAgent(agentID, secret)
	if err != nil {
		return err
	}
	err = agents.CreateAgent(ctx, agent)
	if errors.Is(err, store.ErrDuplicateKey) {
		return fmt.Errorf("agent %q already exists", agent.AgentID)
	}
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	fmt.Fprintf(w, "created agent %s\n", agent.AgentID)
	return nil
}

func listAgents(ctx context.Context, agents store.AgentStore, w io.Writer) error {
	list, err := agents.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tLOGIN STATUS\tLAST LOGIN\tBUSY\tCURRENT JOB")
	for _, a := range list {
		status := a.LoginStatus
		if status == "" {
			status = "-"
		}
		lastLogin := "-"
		if a.LastLoginAttempt != nil {
			lastLogin = a.LastLoginAttempt.Format(time.RFC3339)
		}
		job := "-"
		if a.CurrentJobID != nil {
			job = a.CurrentJobID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", a.AgentID, status, lastLogin, a.IsBusy, job)
	}
	return tw.Flush()
}
