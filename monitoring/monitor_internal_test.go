package monitoring

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/queueing"
	"github.com/sarchlab/delaymem/sim/timing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type sampleStruct struct {
	field1 int
	field2 string
	field3 *sampleStruct
	field4 []sampleStruct
}

type sampleComponent struct {
	*modeling.ComponentBase

	buffer  queueing.Buffer
	pending queueing.Buffer
	counter int
}

func (c *sampleComponent) Tick() bool {
	return false
}

func newSampleComponent() *sampleComponent {
	return &sampleComponent{
		ComponentBase: modeling.NewComponentBase("Comp"),
		buffer:        queueing.NewBuffer("Comp.Buf", 10),
		pending:       queueing.NewBuffer("Comp.Pending", 4),
	}
}

var _ = Describe("Monitor", func() {
	var (
		m *Monitor
	)

	BeforeEach(func() {
		m = &Monitor{}
	})

	It("should register components and internal buffers", func() {
		c := newSampleComponent()
		m.RegisterComponent(c)

		Expect(m.components).To(HaveLen(1))
		Expect(m.buffers).To(HaveLen(2))
	})

	It("should reject low port numbers", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(Equal(0))
		Expect(NewMonitor().WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should walk int fields", func() {
		s := &sampleStruct{
			field1: 1,
		}

		elem, err := m.walkFields(s, "field1")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.Int))
		Expect(elem.Int()).To(Equal(int64(1)))
	})

	It("should walk string fields", func() {
		s := &sampleStruct{
			field2: "abc",
		}

		elem, err := m.walkFields(s, "field2")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.String))
		Expect(elem.String()).To(Equal("abc"))
	})

	It("should walk recursively", func() {
		s := &sampleStruct{
			field3: &sampleStruct{
				field1: 1,
			},
		}

		elem, err := m.walkFields(s, "field3.field1")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.Int))
		Expect(elem.Int()).To(Equal(int64(1)))
	})

	It("should walk slice recursively", func() {
		s := &sampleStruct{
			field4: []sampleStruct{{
				field4: []sampleStruct{
					{field1: 1},
				},
			}, {}},
		}

		elem, err := m.walkFields(s, "field4.0.field4.0.field1")

		Expect(err).To(BeNil())
		Expect(elem.Int()).To(Equal(int64(1)))
	})

	It("should fail on unknown fields", func() {
		_, err := m.walkFields(&sampleStruct{}, "field9")
		Expect(err).To(MatchError(fieldFormatError{}))

		_, err = m.walkFields(&sampleStruct{}, "field4.x")
		Expect(err).To(MatchError(fieldFormatError{}))
	})

	It("should complete progress bars", func() {
		a := m.CreateProgressBar("A", 10)
		b := m.CreateProgressBar("B", 2)

		Expect(a.ID).NotTo(Equal(b.ID))

		m.CompleteProgressBar(a)

		Expect(m.progressBars).To(ConsistOf(b))
	})
})

var _ = Describe("Monitor API", func() {
	var (
		clock  *timing.Clock
		m      *Monitor
		comp   *sampleComponent
		server *httptest.Server
	)

	get := func(path string) (int, []byte) {
		rsp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())

		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())

		return rsp.StatusCode, body
	}

	BeforeEach(func() {
		clock = timing.NewClock()
		comp = newSampleComponent()

		m = NewMonitor()
		m.RegisterClock(clock)
		m.RegisterComponent(comp)

		server = httptest.NewServer(m.Router())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should report the current time", func() {
		Expect(clock.RunFor(3)).To(Succeed())

		code, body := get("/api/now")

		Expect(code).To(Equal(http.StatusOK))
		Expect(string(body)).To(Equal(`{"now":3}`))
	})

	It("should step the clock", func() {
		code, body := get("/api/step")

		Expect(code).To(Equal(http.StatusOK))
		Expect(string(body)).To(Equal(`{"now":1,"progress":false}`))
		Expect(clock.CurrentTime()).To(Equal(timing.VTimeInCycle(1)))
	})

	It("should list components", func() {
		var names []string

		_, body := get("/api/list_components")

		Expect(json.Unmarshal(body, &names)).To(Succeed())
		Expect(names).To(Equal([]string{"Comp"}))
	})

	It("should return 404 for unknown components", func() {
		code, _ := get("/api/component/Nothing")

		Expect(code).To(Equal(http.StatusNotFound))
	})

	It("should reject malformed field requests", func() {
		code, _ := get("/api/field/" + url.PathEscape(`{"comp_name":`))
		Expect(code).To(Equal(http.StatusBadRequest))

		code, _ = get("/api/field/" +
			url.PathEscape(`{"comp_name":"Comp","field_name":"missing"}`))
		Expect(code).To(Equal(http.StatusBadRequest))
	})

	It("should sort buffers by fill percentage", func() {
		comp.buffer.Push(1)
		comp.buffer.Push(2)
		comp.buffer.Push(3)
		comp.pending.Push(1)
		comp.pending.Push(2)

		var rsp []bufferRsp
		_, body := get("/api/hangdetector/buffers")
		Expect(json.Unmarshal(body, &rsp)).To(Succeed())

		Expect(rsp).To(Equal([]bufferRsp{
			{Buffer: "Comp.Pending", Level: 2, Cap: 4},
			{Buffer: "Comp.Buf", Level: 3, Cap: 10},
		}))

		_, body = get("/api/hangdetector/buffers?sort=level&limit=1")
		Expect(json.Unmarshal(body, &rsp)).To(Succeed())

		Expect(rsp).To(Equal([]bufferRsp{
			{Buffer: "Comp.Buf", Level: 3, Cap: 10},
		}))
	})

	It("should reject unknown sort methods", func() {
		code, _ := get("/api/hangdetector/buffers?sort=name")

		Expect(code).To(Equal(http.StatusBadRequest))
	})

	It("should report link traffic", func() {
		masterPort := burstbus.NewPort("Master", 1)
		targetPort := burstbus.NewPort("Target", 1)
		link := burstbus.MakeLinkBuilder().
			WithEngine(clock).
			Build("Link", masterPort, targetPort)
		m.RegisterLink(link)

		master := burstbus.NewMaster(masterPort)
		master.Start(burstbus.NewReadTransaction(0x10, 1))
		master.Tick()
		_, err := clock.Step()
		Expect(err).NotTo(HaveOccurred())

		var rsp []linkRsp
		_, body := get("/api/links")
		Expect(json.Unmarshal(body, &rsp)).To(Succeed())

		Expect(rsp).To(Equal([]linkRsp{
			{Name: "Link", Busy: true, Beats: 1, Transactions: 1},
		}))
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("Samples", 8)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		var rsp []map[string]any
		_, body := get("/api/progress")
		Expect(json.Unmarshal(body, &rsp)).To(Succeed())

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0]).To(HaveKeyWithValue("name", "Samples"))
		Expect(rsp[0]).To(HaveKeyWithValue("finished", float64(2)))
		Expect(rsp[0]).To(HaveKeyWithValue("in_progress", float64(1)))
	})

	It("should serve the status page next to the API", func() {
		code, body := get("/")

		Expect(code).To(Equal(http.StatusOK))
		Expect(string(body)).To(HavePrefix("<!DOCTYPE html>"))
	})

	It("should serve the status page from an asset directory", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "index.html"),
			[]byte("<!DOCTYPE html><p>local</p>"), 0o644)).To(Succeed())

		server.Close()
		server = httptest.NewServer(m.WithAssetDir(dir).Router())

		code, body := get("/")

		Expect(code).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring("local"))
	})

	It("should keep a background run going until a stalled link trips", func() {
		masterPort := burstbus.NewPort("Master", 1)
		targetPort := burstbus.NewPort("Target", 1)
		burstbus.MakeLinkBuilder().
			WithEngine(clock).
			WithStallLimit(10).
			Build("Link", masterPort, targetPort)

		master := burstbus.NewMaster(masterPort)
		master.Start(burstbus.NewReadTransaction(0x10, 1))
		master.Tick()

		code, _ := get("/api/run")
		Expect(code).To(Equal(http.StatusOK))

		Eventually(m.LastError).Should(MatchError(burstbus.ErrStall))
		Expect(errors.Is(m.LastError(), burstbus.ErrStall)).To(BeTrue())
		Expect(clock.CurrentTime()).To(BeNumerically(">", 10))
	})
})
