package stacks

import (
	"context"
	"errors"
	"sync"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

// Well-known stack names.
const (
	StackCore    = "core"
	StackNetwork = "network"
	StackS3      = "s3"
)

// coreOutputs maps stack outputs to core parameter names.
var coreOutputs = []struct {
	stack  string
	output string
	param  string
}{
	{StackCore, "MadCorePrivateIp", "MADCORE_PRIVATE_IP"},
	{StackCore, "MadCorePublicDnsName", "MADCORE_PUBLIC_DNS_NAME"},
	{StackCore, "MadCoreInstanceId", "MADCORE_INSTANCE_ID"},
	{StackCore, "MadCorePublicIp", "MADCORE_PUBLIC_IP"},
	{StackNetwork, "VpcId", "MADCORE_VPC_ID"},
	{StackNetwork, "PublicNetZoneA", "MADCORE_PUBLIC_NET_ZONE_A"},
	{StackS3, "S3BucketName", "MADCORE_S3_BUCKET"},
}

// CoreParams computes the MADCORE_* values of the deployed infrastructure.
// Values are read from the stacks once and cached for the life of the value.
// Plugin values are added by the parameter resolver, not here.
type CoreParams struct {
	api     engine.StackAPI
	keyName string
	logger  *telemetry.Logger

	mu     sync.Mutex
	values map[string]string
}

// NewCoreParams creates a core parameter source. keyName is the SSH key pair
// configured for the deployment.
func NewCoreParams(api engine.StackAPI, keyName string, logger *telemetry.Logger) *CoreParams {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &CoreParams{
		api:     api,
		keyName: keyName,
		logger:  logger.NewComponentLogger("core-params"),
	}
}

// CoreParams returns a copy of the core values. Stacks or outputs that do
// not exist are left out.
func (c *CoreParams) CoreParams(ctx context.Context) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.values == nil {
		c.values = c.load(ctx)
	}

	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *CoreParams) load(ctx context.Context) map[string]string {
	values := make(map[string]string)
	if c.keyName != "" {
		values["MADCORE_KEY_NAME"] = c.keyName
	}

	described := make(map[string]*engine.Stack)
	for _, m := range coreOutputs {
		stack, ok := described[m.stack]
		if !ok {
			var err error
			stack, err = c.api.DescribeStack(ctx, m.stack)
			if err != nil {
				if !errors.Is(err, engine.ErrStackNotFound) {
					c.logger.WithError(err).Warnf("failed to describe stack %s", m.stack)
				}
				stack = nil
			}
			described[m.stack] = stack
		}
		if stack == nil {
			continue
		}

		v, err := Output(stack, m.output)
		if err != nil {
			c.logger.WithError(err).Debugf("stack %s has no output %s", m.stack, m.output)
			continue
		}
		values[m.param] = v
	}

	// Without a configured key pair, use the one the core stack was created with.
	if _, ok := values["MADCORE_KEY_NAME"]; !ok {
		if v, err := Parameter(described[StackCore], "KeyName"); err == nil {
			values["MADCORE_KEY_NAME"] = v
		}
	}
	return values
}
