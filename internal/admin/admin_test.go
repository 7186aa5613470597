package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-sub001/internal/actions"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store/memory"
	"github.com/eclipse-opendut/opendut-sub001/internal/vpn"
)

// newTestRouter mounts the same routes RegisterRoutes does, minus the
// bearerAuth gate: the gate itself is peerauth's concern (RS256/JWK
// validation), so these tests exercise the handlers' own request/response
// and store-error-to-status-code mapping instead.
func newTestRouter(h *handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api/v1")
	group.POST("/peers", h.storePeerDescriptor)
	group.DELETE("/peers/:id", h.deletePeerDescriptor)
	group.GET("/peers/:id", h.getPeerDescriptor)
	group.GET("/peers", h.listPeerDescriptors)
	group.POST("/clusters", h.createClusterConfiguration)
	group.GET("/clusters/:id", h.getClusterConfiguration)
	group.GET("/clusters/:id/peer-states", h.listClusterPeerStates)
	return r
}

func newTestHandlers() *handlers {
	return &handlers{deps: Deps{Options: actions.Options{Store: memory.New(), Vpn: vpn.Disabled()}}}
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func samplePeerDTO(t *testing.T) PeerDescriptorDTO {
	t.Helper()
	ifaceId := model.NewNetworkInterfaceId()
	return PeerDescriptorDTO{
		Id:   model.NewPeerId().String(),
		Name: "peer-a",
		Network: PeerNetworkDTO{
			Interfaces: []NetworkInterfaceDTO{{Id: ifaceId.String(), Name: "eth0", Kind: "ethernet"}},
		},
	}
}

func TestStoreAndGetPeerDescriptor(t *testing.T) {
	h := newTestHandlers()
	r := newTestRouter(h)
	dto := samplePeerDTO(t)

	rec := doJSON(r, http.MethodPost, "/api/v1/peers", dto)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(r, http.MethodGet, "/api/v1/peers/"+dto.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got PeerDescriptorDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, dto.Id, got.Id)
	require.Equal(t, "peer-a", got.Name)
}

func TestGetPeerDescriptorNotFound(t *testing.T) {
	h := newTestHandlers()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodGet, "/api/v1/peers/"+model.NewPeerId().String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPeerDescriptorMalformedId(t *testing.T) {
	h := newTestHandlers()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodGet, "/api/v1/peers/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorePeerDescriptorRejectsUnknownInterfaceReference(t *testing.T) {
	h := newTestHandlers()
	r := newTestRouter(h)

	dto := samplePeerDTO(t)
	dto.Devices = []DeviceDTO{{Id: model.NewDeviceId().String(), Name: "dev", Interface: model.NewNetworkInterfaceId().String()}}

	rec := doJSON(r, http.MethodPost, "/api/v1/peers", dto)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPeerDescriptorsReflectsStoredPeers(t *testing.T) {
	h := newTestHandlers()
	r := newTestRouter(h)

	first := samplePeerDTO(t)
	second := samplePeerDTO(t)
	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/api/v1/peers", first).Code)
	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/api/v1/peers", second).Code)

	rec := doJSON(r, http.MethodGet, "/api/v1/peers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []PeerDescriptorDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
}

func TestCreateClusterConfigurationAndListPeerStates(t *testing.T) {
	h := newTestHandlers()
	r := newTestRouter(h)

	peer := samplePeerDTO(t)
	deviceId := model.NewDeviceId().String()
	peer.Devices = []DeviceDTO{{Id: deviceId, Name: "dev", Interface: peer.Network.Interfaces[0].Id}}
	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/api/v1/peers", peer).Code)

	clusterDTO := ClusterConfigurationDTO{
		Id:      model.NewClusterId().String(),
		Name:    "cluster-a",
		Leader:  peer.Id,
		Devices: []string{deviceId},
	}
	rec := doJSON(r, http.MethodPost, "/api/v1/clusters", clusterDTO)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(r, http.MethodGet, "/api/v1/clusters/"+clusterDTO.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(r, http.MethodGet, "/api/v1/clusters/"+clusterDTO.Id+"/peer-states", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var states map[string]PeerStateDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Contains(t, states, peer.Id)
	require.False(t, states[peer.Id].Online)
}

func TestListClusterPeerStatesUnknownClusterNotFound(t *testing.T) {
	h := newTestHandlers()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodGet, "/api/v1/clusters/"+model.NewClusterId().String()+"/peer-states", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePeerDescriptorUnknownPeerNotFound(t *testing.T) {
	h := newTestHandlers()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodDelete, "/api/v1/peers/"+model.NewPeerId().String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
