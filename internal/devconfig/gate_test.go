package devconfig_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/devconfig"
	"github.com/srg/blesense/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type GateTestSuite struct {
	suite.Suite
	store *kvstore.MemStore
	gate  *devconfig.Gate
}

func (s *GateTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.store = kvstore.NewMemStore()
	s.gate = devconfig.NewGate(s.store, logger)
}

func (s *GateTestSuite) TestExclusivity() {
	// GOAL: Verify the gate only accepts exactly one matching record
	//
	// TEST SCENARIO: zero, one and two matching records → Absent, record, Absent

	s.Run("zero matches is absent", func() {
		cfg, err := s.gate.Load(devconfig.DefaultName)
		s.Assert().Nil(cfg, "config MUST be absent")
		s.Assert().ErrorIs(err, devconfig.ErrNotConfigured, "error MUST be ErrNotConfigured")
	})

	s.Run("exactly one match returns the record unchanged", func() {
		s.Require().NoError(s.store.Write("main.json", []byte(`{"id":"dev-1","api":"https://host.example/api/v1/ingest","update":6}`)))

		cfg, err := s.gate.Load(devconfig.DefaultName)
		s.Require().NoError(err, "single record MUST load")
		s.Assert().Equal(&devconfig.DeviceConfig{
			ID:                  "dev-1",
			Endpoint:            "https://host.example/api/v1/ingest",
			UpdateIntervalHours: 6,
		}, cfg, "loaded config MUST equal stored record")
	})

	s.Run("two matches is absent", func() {
		s.Require().NoError(s.store.Write("backup-main.json", []byte(`{"id":"dev-2","api":"https://host.example/a/b","update":1}`)))

		cfg, err := s.gate.Load(devconfig.DefaultName)
		s.Assert().Nil(cfg, "ambiguous config MUST be absent")
		s.Assert().ErrorIs(err, devconfig.ErrNotConfigured, "error MUST be ErrNotConfigured")
	})
}

func (s *GateTestSuite) TestUnusableRecords() {
	// GOAL: Verify records that cannot drive sampling are treated as not configured
	//
	// TEST SCENARIO: garbage JSON, zero or negative interval → Absent with ErrInvalid

	records := map[string]string{
		"garbage":           `{not json`,
		"zero interval":     `{"id":"dev","api":"https://host.example/a/b","update":0}`,
		"negative interval": `{"id":"dev","api":"https://host.example/a/b","update":-2}`,
	}

	for name, body := range records {
		s.Run(name, func() {
			s.SetupTest()
			s.Require().NoError(s.store.Write(devconfig.DefaultName, []byte(body)))

			cfg, err := s.gate.Load(devconfig.DefaultName)
			s.Assert().Nil(cfg, "config MUST be absent")
			s.Assert().ErrorIs(err, devconfig.ErrNotConfigured, "error MUST be ErrNotConfigured")
			s.Assert().ErrorIs(err, devconfig.ErrInvalid, "error MUST be ErrInvalid")
		})
	}
}

func (s *GateTestSuite) TestLoadReturnsStoredShape() {
	// GOAL: Verify a single matching record is returned as stored, whatever its id and endpoint look like
	//
	// TEST SCENARIO: id with separators and a relative endpoint → loaded unchanged → blob built from it

	s.Require().NoError(s.store.Write(devconfig.DefaultName, []byte(`{"id":"a;b=c","api":"/rel/path","update":1}`)))

	cfg, err := s.gate.Load(devconfig.DefaultName)
	s.Require().NoError(err, "single record MUST load")
	s.Assert().Equal(&devconfig.DeviceConfig{ID: "a;b=c", Endpoint: "/rel/path", UpdateIntervalHours: 1}, cfg)
	s.Assert().Equal("i=a;b=c;e=/", cfg.Blob())
}

func (s *GateTestSuite) TestLoneNearMatchIsAbsent() {
	// GOAL: Verify a record that only matches the pattern is not loaded in place of the named one
	//
	// TEST SCENARIO: only xmain.json stored → Exists true → Load absent

	s.Require().NoError(s.store.Write("xmain.json", []byte(`{"id":"dev","api":"https://host.example/a/b","update":1}`)))

	exists, err := s.gate.Exists(devconfig.DefaultName)
	s.Require().NoError(err)
	s.Assert().True(exists, "pattern match MUST count as existing")

	cfg, err := s.gate.Load(devconfig.DefaultName)
	s.Assert().Nil(cfg, "near match MUST NOT be loaded")
	s.Assert().ErrorIs(err, devconfig.ErrNotConfigured)
}

func (s *GateTestSuite) TestGuardedWrite() {
	// GOAL: Verify write is create-if-absent and round-trips through Load
	//
	// TEST SCENARIO: write → load equals written → second write rejected → stored record unchanged

	first := devconfig.DeviceConfig{ID: "dev-1", Endpoint: "https://host.example/api/v1/ingest", UpdateIntervalHours: 2}
	second := devconfig.DeviceConfig{ID: "dev-2", Endpoint: "https://other.example/x/y", UpdateIntervalHours: 9}

	ok, err := s.gate.Write(devconfig.DefaultName, first)
	s.Require().NoError(err, "first write MUST succeed")
	s.Assert().True(ok, "first write MUST report success")

	loaded, err := s.gate.Load(devconfig.DefaultName)
	s.Require().NoError(err, "load after write MUST succeed")
	s.Assert().Equal(first, *loaded, "round-trip MUST preserve the record")

	ok, err = s.gate.Write(devconfig.DefaultName, second)
	s.Assert().NoError(err, "rejected write MUST NOT be an error")
	s.Assert().False(ok, "second write MUST be rejected")

	loaded, err = s.gate.Load(devconfig.DefaultName)
	s.Require().NoError(err)
	s.Assert().Equal(first, *loaded, "stored record MUST be unchanged after rejected write")

	s.Require().NoError(s.gate.Erase(devconfig.DefaultName), "erase MUST succeed")
	ok, err = s.gate.Write(devconfig.DefaultName, second)
	s.Require().NoError(err)
	s.Assert().True(ok, "write after erase MUST succeed")
}

func (s *GateTestSuite) TestWriteRejectsInvalid() {
	ok, err := s.gate.Write(devconfig.DefaultName, devconfig.DeviceConfig{ID: "dev", Endpoint: "https://h/a", UpdateIntervalHours: -1})
	s.Assert().False(ok, "invalid config MUST NOT be written")
	s.Assert().ErrorIs(err, devconfig.ErrInvalid, "error MUST be ErrInvalid")

	exists, err := s.gate.Exists(devconfig.DefaultName)
	s.Require().NoError(err)
	s.Assert().False(exists, "nothing MUST be stored")
}

func TestGateTestSuite(t *testing.T) {
	suite.Run(t, new(GateTestSuite))
}

func TestEndpointPath(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{endpoint: "https://host.example/api/v1/ingest", want: "/api/v1/ingest"},
		{endpoint: "https://host.example/ingest", want: "/ingest"},
		{endpoint: "http://10.0.0.2:8080/a/b/", want: "/a/b/"},
		{endpoint: "https://host.example", want: "/"},
		{endpoint: "https://host.example/", want: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, devconfig.EndpointPath(tt.endpoint), "endpoint path MUST drop scheme and host")
		})
	}
}

func TestBlob(t *testing.T) {
	cfg := devconfig.DeviceConfig{ID: "abc-123", Endpoint: "https://host.example/api/v1/ingest", UpdateIntervalHours: 1}
	assert.Equal(t, "i=abc-123;e=/api/v1/ingest", cfg.Blob(), "blob MUST follow i=<id>;e=<path>")
}
