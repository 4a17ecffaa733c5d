package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/prompt"
	"github.com/madcore/madcore/pkg/stacks"
)

func newStacksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stacks",
		Short: "List the CloudFormation stacks",
		Long: `List the CloudFormation stacks of the configured region with their status,
creation time and last update time. When the core stack is complete its
instance is shown as well.`,
		Example: `  madcore stacks
  madcore stacks --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := newAWSClient(ctx)
			if err != nil {
				return err
			}

			list, err := client.ListStacks(ctx)
			if err != nil {
				return fmt.Errorf("failed to list stacks: %w", err)
			}
			instance, err := stacks.CoreInstance(ctx, client, client)
			if err != nil {
				app.Logger().WithError(err).Warn("failed to describe core instance")
			}

			if jsonOutput {
				return printJSON(struct {
					Stacks       []engine.Stack   `json:"stacks"`
					CoreInstance *engine.Instance `json:"core_instance,omitempty"`
				}{list, instance})
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No stacks found.")
				return nil
			}
			fmt.Fprintln(out, prompt.Table(stacks.ListingHeaders, stacks.ListingRows(list)))
			if instance != nil {
				fmt.Fprintln(out, prompt.Table(
					[]string{"Instance", "Type", "State", "Public IP", "Private IP", "Public DNS"},
					[][]string{{instance.ID, instance.Type, instance.State, instance.PublicIP, instance.PrivateIP, instance.PublicDNS}},
				))
			}
			return nil
		},
	}

	cmd.AddCommand(newStacksShowCommand())
	return cmd
}

func newStacksShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show the parameters and outputs of a stack",
		Example: `  madcore stacks show core
  madcore stacks show network --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := newAWSClient(ctx)
			if err != nil {
				return err
			}

			stack, err := client.DescribeStack(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to describe stack %s: %w", args[0], err)
			}

			if jsonOutput {
				return printJSON(struct {
					Name       string            `json:"name"`
					Status     string            `json:"status"`
					Parameters map[string]string `json:"parameters"`
					Outputs    map[string]string `json:"outputs"`
				}{stack.Name, string(stack.Status), stacks.ParametersToMap(stack), stacks.OutputsToMap(stack)})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", stack.Name, stack.Status)
			fmt.Fprintln(out, prompt.Table(stacks.DetailHeaders, stacks.DetailRows(stack)))
			return nil
		},
	}
}
