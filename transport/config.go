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

package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	libval "github.com/go-playground/validator/v10"
	libtls "github.com/nabbar/golib/certificates"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
)

const jsonIndent = "  "

// Config drives the default transport provider.
//
// All fields support JSON, YAML, TOML, and Viper configuration through
// struct tags.
type Config struct {
	// TimeoutConnect bounds one dial attempt. Zero means 30s.
	TimeoutConnect libdur.Duration `json:"timeout-connect,omitempty" yaml:"timeout-connect,omitempty" toml:"timeout-connect,omitempty" mapstructure:"timeout-connect,omitempty"`

	// TimeoutKeepAlive sets the TCP keep-alive probe interval. Zero means 15s.
	TimeoutKeepAlive libdur.Duration `json:"timeout-keepalive,omitempty" yaml:"timeout-keepalive,omitempty" toml:"timeout-keepalive,omitempty" mapstructure:"timeout-keepalive,omitempty"`

	// LocalAddr optionally pins the local address used for dialing.
	LocalAddr string `json:"local-addr,omitempty" yaml:"local-addr,omitempty" toml:"local-addr,omitempty" mapstructure:"local-addr,omitempty"`

	// TLSConfig configures the handshake of TLS targets.
	TLSConfig *libtls.Config `json:"tls-config,omitempty" yaml:"tls-config,omitempty" toml:"tls-config,omitempty" mapstructure:"tls-config,omitempty"`

	// Protocols is the ALPN preference list offered on TLS targets,
	// most preferred first. Empty means spdy/3.1 then http/1.1.
	Protocols []string `json:"protocols,omitempty" yaml:"protocols,omitempty" toml:"protocols,omitempty" mapstructure:"protocols,omitempty" validate:"omitempty,dive,min=1"`
}

// DefaultConfig generates a default provider configuration in JSON format,
// usable as a template for custom configurations.
func DefaultConfig(indent string) []byte {
	var (
		res = bytes.NewBuffer(make([]byte, 0))
		def = []byte(`{
  "timeout-connect": "30s",
  "timeout-keepalive": "15s",
  "local-addr": "",
  "protocols": ["spdy/3.1","http/1.1"]
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

func (o Config) timeoutConnect() time.Duration {
	if o.TimeoutConnect == 0 {
		return 30 * time.Second
	}

	return o.TimeoutConnect.Time()
}

func (o Config) timeoutKeepAlive() time.Duration {
	if o.TimeoutKeepAlive == 0 {
		return 15 * time.Second
	}

	return o.TimeoutKeepAlive.Time()
}

func (o Config) protocols() []string {
	if len(o.Protocols) < 1 {
		return []string{"spdy/3.1", "http/1.1"}
	}

	return o.Protocols
}
