package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
)

func TestNewWithWriterJSON(t *testing.T) {
	g := NewWithT(t)
	buf := bytes.NewBufferString("")
	log, err := NewWithWriter(buf, "test-service", "debug", FormatJSON)
	g.Expect(err).ToNot(HaveOccurred())

	log.Info().Msg("Testing")
	var actual map[string]interface{}
	g.Expect(json.Unmarshal(buf.Bytes(), &actual)).To(Succeed())
	g.Expect(actual["service"]).To(Equal("test-service"))
	g.Expect(actual["level"]).To(Equal("info"))
	g.Expect(actual["message"]).To(Equal("Testing"))
}

func TestNewWithWriterFiltersLevel(t *testing.T) {
	g := NewWithT(t)
	buf := bytes.NewBufferString("")
	log, err := NewWithWriter(buf, "svc", "warn", FormatJSON)
	g.Expect(err).ToNot(HaveOccurred())

	log.Info().Msg("dropped")
	g.Expect(buf.Len()).To(BeZero())
	log.Warn().Msg("kept")
	g.Expect(buf.String()).To(ContainSubstring("kept"))
}

func TestParseLevel(t *testing.T) {
	g := NewWithT(t)
	lvl, err := ParseLevel("")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(lvl).To(Equal(zerolog.InfoLevel))

	lvl, err = ParseLevel("DEBUG")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(lvl).To(Equal(zerolog.DebugLevel))

	_, err = ParseLevel("loud")
	g.Expect(err).To(HaveOccurred())
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := NewWithWriter(bytes.NewBuffer(nil), "svc", "info", Format("xml"))
	if err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}
