package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

const (
	serviceCloudFormation = "cloudformation"
	serviceEC2            = "ec2"
)

// CloudFormationAPI is the subset of the CloudFormation client in use.
type CloudFormationAPI interface {
	cloudformation.DescribeStacksAPIClient
	DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
}

// EC2API is the subset of the EC2 client in use.
type EC2API interface {
	ec2.DescribeInstancesAPIClient
}

// Client is the AWS provider client
type Client struct {
	cfn    CloudFormationAPI
	ec2    EC2API
	logger *telemetry.Logger
}

// NewClient creates a new AWS client from the default credential chain.
// An empty region uses the region of the environment or shared config.
func NewClient(ctx context.Context, region string, logger *telemetry.Logger) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewClientWithAPIs(cloudformation.NewFromConfig(cfg), ec2.NewFromConfig(cfg), logger), nil
}

// NewClientWithAPIs creates a client over existing service clients.
func NewClientWithAPIs(cfn CloudFormationAPI, ec2Client EC2API, logger *telemetry.Logger) *Client {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Client{
		cfn:    cfn,
		ec2:    ec2Client,
		logger: logger.NewComponentLogger("aws"),
	}
}

// DescribeStack returns one stack, or an error wrapping ErrStackNotFound.
func (c *Client) DescribeStack(ctx context.Context, name string) (*engine.Stack, error) {
	var stack *engine.Stack
	err := c.call(ctx, serviceCloudFormation, "DescribeStacks", name, func(ctx context.Context) error {
		out, err := c.cfn.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
			StackName: awssdk.String(name),
		})
		if err != nil {
			return err
		}
		if len(out.Stacks) == 0 {
			return fmt.Errorf("stack %s: %w", name, engine.ErrStackNotFound)
		}
		stack = convertStack(out.Stacks[0])
		return nil
	})
	return stack, err
}

// DescribeStackEvents returns the most recent page of stack events, newest first.
func (c *Client) DescribeStackEvents(ctx context.Context, name string) ([]engine.StackEvent, error) {
	var events []engine.StackEvent
	err := c.call(ctx, serviceCloudFormation, "DescribeStackEvents", name, func(ctx context.Context) error {
		out, err := c.cfn.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{
			StackName: awssdk.String(name),
		})
		if err != nil {
			return err
		}
		events = make([]engine.StackEvent, 0, len(out.StackEvents))
		for _, e := range out.StackEvents {
			events = append(events, engine.StackEvent{
				ID:                awssdk.ToString(e.EventId),
				LogicalResourceID: awssdk.ToString(e.LogicalResourceId),
				ResourceType:      awssdk.ToString(e.ResourceType),
				ResourceStatus:    engine.StackStatus(e.ResourceStatus),
				StatusReason:      awssdk.ToString(e.ResourceStatusReason),
				Timestamp:         awssdk.ToTime(e.Timestamp),
			})
		}
		return nil
	})
	return events, err
}

// CreateStack starts a stack creation with IAM capabilities and returns the stack id.
func (c *Client) CreateStack(ctx context.Context, input engine.CreateStackInput) (string, error) {
	params := make([]cfntypes.Parameter, 0, len(input.Parameters))
	for _, p := range input.Parameters {
		params = append(params, cfntypes.Parameter{
			ParameterKey:   awssdk.String(p.Key),
			ParameterValue: awssdk.String(p.Value),
		})
	}

	tags := make([]cfntypes.Tag, 0, len(input.Tags))
	for k, v := range input.Tags {
		tags = append(tags, cfntypes.Tag{Key: awssdk.String(k), Value: awssdk.String(v)})
	}

	var id string
	err := c.call(ctx, serviceCloudFormation, "CreateStack", input.Name, func(ctx context.Context) error {
		out, err := c.cfn.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:    awssdk.String(input.Name),
			TemplateBody: awssdk.String(input.TemplateBody),
			Parameters:   params,
			Tags:         tags,
			Capabilities: []cfntypes.Capability{
				cfntypes.CapabilityCapabilityIam,
				cfntypes.CapabilityCapabilityNamedIam,
			},
		})
		if err != nil {
			return err
		}
		id = awssdk.ToString(out.StackId)
		return nil
	})
	return id, err
}

// ListStacks returns every stack of the account and region.
func (c *Client) ListStacks(ctx context.Context) ([]engine.Stack, error) {
	var stacks []engine.Stack
	err := c.call(ctx, serviceCloudFormation, "DescribeStacks", "", func(ctx context.Context) error {
		paginator := cloudformation.NewDescribeStacksPaginator(c.cfn, &cloudformation.DescribeStacksInput{})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, s := range page.Stacks {
				stacks = append(stacks, *convertStack(s))
			}
		}
		return nil
	})
	return stacks, err
}

// DescribeInstance returns the instance, or nil when it does not exist.
func (c *Client) DescribeInstance(ctx context.Context, id string) (*engine.Instance, error) {
	var inst *engine.Instance
	err := c.call(ctx, serviceEC2, "DescribeInstances", id, func(ctx context.Context) error {
		out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{id},
		})
		if err != nil {
			if isInstanceNotFound(err) {
				return nil
			}
			return err
		}
		for _, r := range out.Reservations {
			for _, i := range r.Instances {
				inst = &engine.Instance{
					ID:        awssdk.ToString(i.InstanceId),
					Type:      string(i.InstanceType),
					PublicIP:  awssdk.ToString(i.PublicIpAddress),
					PrivateIP: awssdk.ToString(i.PrivateIpAddress),
					PublicDNS: awssdk.ToString(i.PublicDnsName),
				}
				if i.State != nil {
					inst.State = string(i.State.Name)
				}
				return nil
			}
		}
		return nil
	})
	return inst, err
}

// WaitInstanceTerminated blocks until the instance is terminated or maxWait elapses.
func (c *Client) WaitInstanceTerminated(ctx context.Context, id string, maxWait time.Duration) error {
	return c.call(ctx, serviceEC2, "WaitInstanceTerminated", id, func(ctx context.Context) error {
		waiter := ec2.NewInstanceTerminatedWaiter(c.ec2)
		return waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, maxWait)
	})
}

// call runs one API request, classifies its error and records telemetry.
func (c *Client) call(ctx context.Context, service, operation, target string, fn func(ctx context.Context) error) error {
	err := telemetry.RecordAPICall(ctx, service, operation, errorClass, func(ctx context.Context) error {
		return classifyError(service, operation, target, fn(ctx))
	})
	if err != nil {
		c.logger.WithError(err).Debugf("%s.%s failed", service, operation)
	}
	return err
}

func errorClass(err error) string {
	return string(engine.ClassOf(err))
}

// classifyError maps SDK errors to controller errors.
func classifyError(service, operation, target string, err error) error {
	if err == nil {
		return nil
	}

	var ce *engine.ControllerError
	if errors.As(err, &ce) {
		return err
	}

	msg := fmt.Sprintf("%s failed", operation)
	if errors.Is(err, engine.ErrStackNotFound) {
		return engine.NewPermanentError(msg, err).
			WithCode(engine.ErrCodeNotFound).WithService(service).WithTarget(target)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case isThrottleCode(code):
			return engine.NewThrottledError(msg, err).WithService(service).WithTarget(target)
		case code == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist"):
			return engine.NewPermanentError(msg, fmt.Errorf("%w: %s", engine.ErrStackNotFound, apiErr.ErrorMessage())).
				WithCode(engine.ErrCodeNotFound).WithService(service).WithTarget(target)
		case apiErr.ErrorFault() == smithy.FaultServer:
			return engine.NewTransientError(msg, err).
				WithCode(engine.ErrCodeUnavailable).WithService(service).WithTarget(target)
		default:
			return engine.NewPermanentError(msg, err).WithService(service).WithTarget(target)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return engine.NewTransientError(msg, err).
			WithCode(engine.ErrCodeTimeout).WithService(service).WithTarget(target)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	// Transport failures never reached the API.
	return engine.NewTransientError(msg, err).WithService(service).WithTarget(target)
}

func isThrottleCode(code string) bool {
	switch code {
	case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException":
		return true
	}
	return false
}

func isInstanceNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidInstanceID.NotFound"
}

func convertStack(s cfntypes.Stack) *engine.Stack {
	stack := &engine.Stack{
		Name:            awssdk.ToString(s.StackName),
		ID:              awssdk.ToString(s.StackId),
		Status:          engine.StackStatus(s.StackStatus),
		StatusReason:    awssdk.ToString(s.StackStatusReason),
		CreationTime:    awssdk.ToTime(s.CreationTime),
		LastUpdatedTime: s.LastUpdatedTime,
	}
	for _, o := range s.Outputs {
		stack.Outputs = append(stack.Outputs, engine.KeyValue{
			Key:   awssdk.ToString(o.OutputKey),
			Value: awssdk.ToString(o.OutputValue),
		})
	}
	for _, p := range s.Parameters {
		stack.Parameters = append(stack.Parameters, engine.KeyValue{
			Key:   awssdk.ToString(p.ParameterKey),
			Value: awssdk.ToString(p.ParameterValue),
		})
	}
	if len(s.Tags) > 0 {
		stack.Tags = make(map[string]string, len(s.Tags))
		for _, t := range s.Tags {
			stack.Tags[awssdk.ToString(t.Key)] = awssdk.ToString(t.Value)
		}
	}
	return stack
}

var (
	_ engine.StackProvisioner = (*Client)(nil)
	_ engine.InstanceAPI      = (*Client)(nil)
)
