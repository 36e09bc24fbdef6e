package api

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Response envelope", func() {
	var e *testEnv

	BeforeEach(func() {
		e = newTestEnv(GinkgoT())
	})

	Context("on success", func() {
		It("reports success with a message and data", func() {
			rec, env := e.do(GinkgoT(), http.MethodPost, "/api/v1/client-schemas", purchaseOrderBody(e.clientA))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(env.Success).To(BeTrue())
			Expect(env.Message).To(ContainSubstring("purchase_order"))
			Expect(string(env.Data)).To(ContainSubstring(`"schema_name":"purchase_order"`))
		})
	})

	Context("on failure", func() {
		It("returns null data for not found", func() {
			rec, env := e.do(GinkgoT(), http.MethodGet, "/api/v1/client-schemas/missing", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(env.Success).To(BeFalse())
			Expect(string(env.Data)).To(Equal("null"))
		})

		It("returns the violation list for validation errors", func() {
			body := purchaseOrderBody(e.clientA)
			body["fields"] = []map[string]any{{"name": "x", "type": "money"}}
			rec, env := e.do(GinkgoT(), http.MethodPost, "/api/v1/client-schemas", body)
			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(env.Success).To(BeFalse())
			violations := decodeData[[]string](GinkgoT(), env)
			Expect(violations).To(HaveLen(1))
			Expect(violations[0]).To(ContainSubstring("type must be one of"))
		})

		It("rejects malformed client ids before reaching handlers", func() {
			rec, env := e.do(GinkgoT(), http.MethodGet, "/api/v1/documents/abc/purchase_order", nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(env.Success).To(BeFalse())
			Expect(env.Message).To(ContainSubstring("invalid client_id format"))
		})
	})
})
