package api

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate/migrationlog"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

var _ = Describe("LogStream", func() {
	It("pushes appended log entries to websocket clients", func() {
		dir, err := os.MkdirTemp("", "log-stream")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "migrations.log")
		mlog, err := migrationlog.New(afero.NewOsFs(), path, migrationlog.FormatLegacy)
		Expect(err).ToNot(HaveOccurred())
		Expect(mlog.Append(migrationlog.Record{Date: time.Now(), RowCount: 1})).To(Succeed())

		stream := NewLogStream(path, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = stream.Run(ctx) }()

		srv := httptest.NewServer(stream)
		defer srv.Close()
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()
		Eventually(stream.Clients, time.Second).Should(Equal(1))

		// the tail starts at the end of the file, keep appending until it catches up
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			defer GinkgoRecover()
			for {
				select {
				case <-stop:
					return
				case <-time.After(100 * time.Millisecond):
					_ = mlog.Append(migrationlog.Record{Date: time.Now(), RowCount: 7})
				}
			}
		}()

		Expect(conn.SetReadDeadline(time.Now().Add(10 * time.Second))).To(Succeed())
		_, msg, err := conn.ReadMessage()
		Expect(err).ToNot(HaveOccurred())
		Expect(string(msg)).To(HavePrefix("{"))
		Expect(string(msg)).To(HaveSuffix("}"))
		Expect(string(msg)).To(ContainSubstring(`"migrated_records_count":7`))
	})
})
