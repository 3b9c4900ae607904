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

package transport_test

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/connmgr/conninfo"
	"github/sabouaram/connmgr/transport"
)

var _ = Describe("Default Provider", func() {
	Context("Configuration", func() {
		It("should validate an empty config", func() {
			Expect(transport.Config{}.Validate()).To(BeNil())
		})

		It("should produce a parsable default config", func() {
			var cfg transport.Config

			Expect(json.Unmarshal(transport.DefaultConfig(""), &cfg)).ToNot(HaveOccurred())
			Expect(cfg.Validate()).To(BeNil())
		})

		It("should accept a nil config on creation", func() {
			p, e := transport.New(nil, nil)

			Expect(e).ToNot(HaveOccurred())
			Expect(p).ToNot(BeNil())
		})
	})

	Context("Dial", func() {
		var (
			lst  net.Listener
			host string
			port uint16
		)

		BeforeEach(func() {
			var err error

			lst, err = net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())

			var p string
			host, p, err = net.SplitHostPort(lst.Addr().String())
			Expect(err).ToNot(HaveOccurred())

			n, err := strconv.Atoi(p)
			Expect(err).ToNot(HaveOccurred())
			port = uint16(n)

			go func() {
				for {
					c, e := lst.Accept()
					if e != nil {
						return
					}

					go func(c net.Conn) {
						var b = make([]byte, 64)
						if n, e := c.Read(b); e == nil {
							_, _ = c.Write(b[:n])
						}
						_ = c.Close()
					}(c)
				}
			}()
		})

		AfterEach(func() {
			if lst != nil {
				_ = lst.Close()
			}
		})

		It("should open a cleartext transport and move bytes", func() {
			p, e := transport.New(nil, nil)
			Expect(e).ToNot(HaveOccurred())

			t, err := p.Dial(context.Background(), conninfo.New(host, port, false, false))
			Expect(err).ToNot(HaveOccurred())
			Expect(t).ToNot(BeNil())

			defer func() {
				_ = t.Close()
			}()

			Expect(t.NegotiatedProtocol()).To(BeEmpty())
			Expect(t.RemoteIP()).To(Equal("127.0.0.1"))

			_, err = t.Write([]byte("ping"))
			Expect(err).ToNot(HaveOccurred())

			Expect(t.SetReadDeadline(time.Now().Add(2 * time.Second))).ToNot(HaveOccurred())

			var b = make([]byte, 4)
			n, err := t.Read(b)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b[:n])).To(Equal("ping"))
		})

		It("should fail toward a closed endpoint", func() {
			p, e := transport.New(&transport.Config{}, nil)
			Expect(e).ToNot(HaveOccurred())

			_ = lst.Close()
			lst = nil

			x, l := context.WithTimeout(context.Background(), 2*time.Second)
			defer l()

			_, err := p.Dial(x, conninfo.New(host, port, false, false))
			Expect(err).To(HaveOccurred())
		})

		It("should refuse a nil target", func() {
			p, e := transport.New(nil, nil)
			Expect(e).ToNot(HaveOccurred())

			_, err := p.Dial(context.Background(), nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("LookupIP", func() {
		It("should resolve the loopback name", func() {
			p, e := transport.New(nil, nil)
			Expect(e).ToNot(HaveOccurred())

			ip, err := p.LookupIP(context.Background(), "localhost")
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).ToNot(BeEmpty())
		})

		It("should refuse an empty host", func() {
			p, e := transport.New(nil, nil)
			Expect(e).ToNot(HaveOccurred())

			_, err := p.LookupIP(context.Background(), "")
			Expect(err).To(HaveOccurred())
		})
	})
})
