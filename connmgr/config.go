/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package connmgr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	libval "github.com/go-playground/validator/v10"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
)

const jsonIndent = "  "

// Config carries the startup limits of the connection manager. The eight
// limit slots can be changed later through UpdateParam; the remaining fields
// are fixed for the manager's lifetime.
//
// All fields support JSON, YAML, TOML, and Viper configuration through
// struct tags.
type Config struct {
	// MaxConnections caps the total of active plus half-open connections.
	// Zero means 256.
	MaxConnections uint16 `json:"max-connections" yaml:"max-connections" toml:"max-connections" mapstructure:"max-connections"`

	// MaxConnectionsPerHost caps connections toward one origin host for
	// traffic that refuses keep-alive. Zero means 8.
	MaxConnectionsPerHost uint16 `json:"max-connections-per-host" yaml:"max-connections-per-host" toml:"max-connections-per-host" mapstructure:"max-connections-per-host"`

	// MaxConnectionsPerProxy caps connections through one proxy for traffic
	// that refuses keep-alive. Zero means 16.
	MaxConnectionsPerProxy uint16 `json:"max-connections-per-proxy" yaml:"max-connections-per-proxy" toml:"max-connections-per-proxy" mapstructure:"max-connections-per-proxy"`

	// MaxPersistentConnectionsPerHost caps persistent connections toward one
	// origin host. Zero means 6.
	MaxPersistentConnectionsPerHost uint16 `json:"max-persistent-connections-per-host" yaml:"max-persistent-connections-per-host" toml:"max-persistent-connections-per-host" mapstructure:"max-persistent-connections-per-host"`

	// MaxPersistentConnectionsPerProxy caps persistent connections through
	// one proxy. Zero means 8.
	MaxPersistentConnectionsPerProxy uint16 `json:"max-persistent-connections-per-proxy" yaml:"max-persistent-connections-per-proxy" toml:"max-persistent-connections-per-proxy" mapstructure:"max-persistent-connections-per-proxy"`

	// MaxRequestDelay is the pending age, in seconds, past which a queued
	// transaction may force a new connection despite the persistent caps.
	// Zero means 10.
	MaxRequestDelay uint16 `json:"max-request-delay" yaml:"max-request-delay" toml:"max-request-delay" mapstructure:"max-request-delay"`

	// MaxPipelinedRequests caps the depth of any pipeline. Zero means 32.
	MaxPipelinedRequests uint16 `json:"max-pipelined-requests" yaml:"max-pipelined-requests" toml:"max-pipelined-requests" mapstructure:"max-pipelined-requests"`

	// MaxOptimisticPipelinedRequests caps the depth used when scheduling
	// onto a pipeline while connection capacity is still available. Zero
	// means 4.
	MaxOptimisticPipelinedRequests uint16 `json:"max-optimistic-pipelined-requests" yaml:"max-optimistic-pipelined-requests" toml:"max-optimistic-pipelined-requests" mapstructure:"max-optimistic-pipelined-requests"`

	// AggressivePipelining opens the pipeline depth straight to its maximum
	// on the first promotion to green.
	AggressivePipelining bool `json:"aggressive-pipelining" yaml:"aggressive-pipelining" toml:"aggressive-pipelining" mapstructure:"aggressive-pipelining"`

	// BackupConnDelay is the time after which a second transport attempt is
	// raced against a primary that has not connected yet. Zero means 250ms.
	BackupConnDelay libdur.Duration `json:"backup-conn-delay,omitempty" yaml:"backup-conn-delay,omitempty" toml:"backup-conn-delay,omitempty" mapstructure:"backup-conn-delay,omitempty"`

	// TimeoutIdleConn is the keep-alive lifetime of an idle pooled
	// connection. Zero means 115s.
	TimeoutIdleConn libdur.Duration `json:"timeout-idle-conn,omitempty" yaml:"timeout-idle-conn,omitempty" toml:"timeout-idle-conn,omitempty" mapstructure:"timeout-idle-conn,omitempty"`

	// TimeoutReadStall is the read deadline refreshed on active connections
	// by the one second tick, so a stalled peer fails the next read fast.
	// Zero disables the deadline while keeping the tick.
	TimeoutReadStall libdur.Duration `json:"timeout-read-stall,omitempty" yaml:"timeout-read-stall,omitempty" toml:"timeout-read-stall,omitempty" mapstructure:"timeout-read-stall,omitempty"`

	// QueueSize bounds the cross-context event queue. Zero means 4096.
	QueueSize uint16 `json:"queue-size,omitempty" yaml:"queue-size,omitempty" toml:"queue-size,omitempty" mapstructure:"queue-size,omitempty"`
}

// DefaultConfig generates a default manager configuration in JSON format,
// usable as a template for custom configurations.
func DefaultConfig(indent string) []byte {
	var (
		res = bytes.NewBuffer(make([]byte, 0))
		def = []byte(`{
  "max-connections": 256,
  "max-connections-per-host": 8,
  "max-connections-per-proxy": 16,
  "max-persistent-connections-per-host": 6,
  "max-persistent-connections-per-proxy": 8,
  "max-request-delay": 10,
  "max-pipelined-requests": 32,
  "max-optimistic-pipelined-requests": 4,
  "aggressive-pipelining": false,
  "backup-conn-delay": "250ms",
  "timeout-idle-conn": "1m55s",
  "timeout-read-stall": "0s",
  "queue-size": 4096
}`)
	)
	if err := json.Indent(res, def, indent, jsonIndent); err != nil {
		return def
	} else {
		return res.Bytes()
	}
}

// Validate checks the Config against its struct tag constraints.
func (o Config) Validate() liberr.Error {
	var e = ErrorValidatorError.Error(nil)

	if err := libval.New().Struct(o); err != nil {
		if er, ok := err.(*libval.InvalidValidationError); ok {
			e.Add(er)
		}

		for _, er := range err.(libval.ValidationErrors) {
			//nolint #goerr113
			e.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
		}
	}

	if !e.HasParent() {
		e = nil
	}

	return e
}

func (o Config) maxConns() uint16 {
	if o.MaxConnections == 0 {
		return 256
	}

	return o.MaxConnections
}

func (o Config) maxConnsPerHost() uint16 {
	if o.MaxConnectionsPerHost == 0 {
		return 8
	}

	return o.MaxConnectionsPerHost
}

func (o Config) maxConnsPerProxy() uint16 {
	if o.MaxConnectionsPerProxy == 0 {
		return 16
	}

	return o.MaxConnectionsPerProxy
}

func (o Config) maxPersistPerHost() uint16 {
	if o.MaxPersistentConnectionsPerHost == 0 {
		return 6
	}

	return o.MaxPersistentConnectionsPerHost
}

func (o Config) maxPersistPerProxy() uint16 {
	if o.MaxPersistentConnectionsPerProxy == 0 {
		return 8
	}

	return o.MaxPersistentConnectionsPerProxy
}

func (o Config) maxRequestDelay() time.Duration {
	if o.MaxRequestDelay == 0 {
		return 10 * time.Second
	}

	return time.Duration(o.MaxRequestDelay) * time.Second
}

func (o Config) maxPipelined() uint32 {
	if o.MaxPipelinedRequests == 0 {
		return 32
	}

	return uint32(o.MaxPipelinedRequests)
}

func (o Config) maxOptimisticPipelined() uint32 {
	if o.MaxOptimisticPipelinedRequests == 0 {
		return 4
	}

	return uint32(o.MaxOptimisticPipelinedRequests)
}

func (o Config) backupDelay() time.Duration {
	if o.BackupConnDelay == 0 {
		return 250 * time.Millisecond
	}

	return o.BackupConnDelay.Time()
}

func (o Config) idleTimeout() time.Duration {
	if o.TimeoutIdleConn == 0 {
		return 115 * time.Second
	}

	return o.TimeoutIdleConn.Time()
}

func (o Config) queueSize() int {
	if o.QueueSize == 0 {
		return 4096
	}

	return int(o.QueueSize)
}
