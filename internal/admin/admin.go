package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eclipse-opendut/opendut-sub001/internal/actions"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/peerauth"
	"github.com/eclipse-opendut/opendut-sub001/internal/setup"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
)

// bearerAuth gates every administrative route behind a valid bearer token,
// per spec.md §6 ("every request carries a bearer token validated per
// §4.5"), using the request's own context so a slow JWK refresh aborts
// with the request rather than a detached background one.
func bearerAuth(validator *peerauth.Validator) gin.HandlerFunc {
	const prefix = "Bearer "
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed bearer token"})
			c.Abort()
			return
		}
		if err := validator.AuthenticateAdmin(c.Request.Context(), auth[len(prefix):]); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Deps bundles everything the administrative handlers need beyond
// actions.Options: the carl/ca material handed out in PeerSetup/CleoSetup
// bundles.
type Deps struct {
	Options actions.Options
	CarlURL string
	CAPem   string
	Auth    setup.AuthConfig
	Vpn     setup.VpnConfig
}

// RegisterRoutes mounts the administrative RPC surface (spec.md §6) under
// router, gated by a bearer token validated against validator.
func RegisterRoutes(router *gin.Engine, deps Deps, validator *peerauth.Validator) {
	group := router.Group("/api/v1")
	group.Use(bearerAuth(validator))

	h := &handlers{deps: deps}

	group.POST("/peers", h.storePeerDescriptor)
	group.DELETE("/peers/:id", h.deletePeerDescriptor)
	group.GET("/peers/:id", h.getPeerDescriptor)
	group.GET("/peers", h.listPeerDescriptors)
	group.GET("/peers/:id/state", h.getPeerState)
	group.GET("/devices", h.listDevices)
	group.POST("/peers/:id/setup", h.generatePeerSetup)
	group.POST("/cleo-setup", h.generateCleoSetup)

	group.POST("/clusters", h.createClusterConfiguration)
	group.DELETE("/clusters/:id", h.deleteClusterConfiguration)
	group.GET("/clusters/:id", h.getClusterConfiguration)
	group.GET("/clusters", h.listClusterConfigurations)

	group.POST("/clusters/:id/deployment", h.storeClusterDeployment)
	group.DELETE("/clusters/:id/deployment", h.deleteClusterDeployment)
	group.GET("/clusters/:id/deployment", h.getClusterDeployment)
	group.GET("/deployments", h.listClusterDeployments)
	group.GET("/clusters/:id/peer-states", h.listClusterPeerStates)
}

type handlers struct{ deps Deps }

func (h *handlers) storePeerDescriptor(c *gin.Context) {
	var dto PeerDescriptorDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	descriptor, err := peerFromDTO(dto)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := actions.StorePeerDescriptor(c.Request.Context(), h.deps.Options, descriptor)
	if err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id.String()})
}

func (h *handlers) deletePeerDescriptor(c *gin.Context) {
	id, err := model.ParsePeerId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deleted, err := actions.DeletePeerDescriptor(c.Request.Context(), h.deps.Options, id)
	if err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, peerToDTO(deleted))
}

func (h *handlers) getPeerDescriptor(c *gin.Context) {
	id, err := model.ParsePeerId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok, err := store.Get[model.PeerDescriptor](c.Request.Context(), h.deps.Options.Store, store.KindPeerDescriptor, id.UUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
		return
	}
	c.JSON(http.StatusOK, peerToDTO(p))
}

func (h *handlers) listPeerDescriptors(c *gin.Context) {
	all, err := store.List[model.PeerDescriptor](c.Request.Context(), h.deps.Options.Store, store.KindPeerDescriptor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]PeerDescriptorDTO, 0, len(all))
	for _, p := range all {
		out = append(out, peerToDTO(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getPeerState(c *gin.Context) {
	id, err := model.ParsePeerId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, ok, err := store.Get[model.PeerState](c.Request.Context(), h.deps.Options.Store, store.KindPeerState, id.UUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
		return
	}
	c.JSON(http.StatusOK, peerStateToDTO(state))
}

func (h *handlers) listDevices(c *gin.Context) {
	all, err := store.List[model.DeviceDescriptor](c.Request.Context(), h.deps.Options.Store, store.KindDeviceDescriptor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]DeviceDTO, 0, len(all))
	for _, d := range all {
		out = append(out, deviceToDTO(d))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) generatePeerSetup(c *gin.Context) {
	id, err := model.ParsePeerId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok, err := store.Get[model.PeerDescriptor](c.Request.Context(), h.deps.Options.Store, store.KindPeerDescriptor, id.UUID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	} else if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
		return
	}

	vpnCfg := h.deps.Vpn
	if h.deps.Options.Vpn.Enabled() {
		peerCfg, err := h.deps.Options.Vpn.CreatePeerConfiguration(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		vpnCfg.SetupKey = peerCfg.SetupKey
	}

	bundle := setup.NewPeerSetup(id, h.deps.CarlURL, h.deps.CAPem, h.deps.Auth, vpnCfg)
	encoded, err := setup.EncodePeerSetup(bundle)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"setup": encoded})
}

func (h *handlers) generateCleoSetup(c *gin.Context) {
	bundle := setup.CleoSetup{Carl: h.deps.CarlURL, CA: h.deps.CAPem, AuthConfig: h.deps.Auth}
	encoded, err := setup.EncodeCleoSetup(bundle)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"setup": encoded})
}

func (h *handlers) createClusterConfiguration(c *gin.Context) {
	var dto ClusterConfigurationDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := clusterFromDTO(dto)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := actions.CreateClusterConfiguration(c.Request.Context(), h.deps.Options, cfg)
	if err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id.String()})
}

func (h *handlers) deleteClusterConfiguration(c *gin.Context) {
	id, err := model.ParseClusterId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deleted, err := actions.DeleteClusterConfiguration(c.Request.Context(), h.deps.Options, id)
	if err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, clusterToDTO(deleted))
}

func (h *handlers) getClusterConfiguration(c *gin.Context) {
	id, err := model.ParseClusterId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, ok, err := store.Get[model.ClusterConfiguration](c.Request.Context(), h.deps.Options.Store, store.KindClusterConfiguration, id.UUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "cluster not found"})
		return
	}
	c.JSON(http.StatusOK, clusterToDTO(cfg))
}

func (h *handlers) listClusterConfigurations(c *gin.Context) {
	all, err := store.List[model.ClusterConfiguration](c.Request.Context(), h.deps.Options.Store, store.KindClusterConfiguration)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]ClusterConfigurationDTO, 0, len(all))
	for _, cfg := range all {
		out = append(out, clusterToDTO(cfg))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) storeClusterDeployment(c *gin.Context) {
	id, err := model.ParseClusterId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := actions.StoreClusterDeployment(c.Request.Context(), h.deps.Options, id); err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, ClusterDeploymentDTO{Id: id.String()})
}

func (h *handlers) deleteClusterDeployment(c *gin.Context) {
	id, err := model.ParseClusterId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := actions.DeleteClusterDeployment(c.Request.Context(), h.deps.Options, id); err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, ClusterDeploymentDTO{Id: id.String()})
}

func (h *handlers) getClusterDeployment(c *gin.Context) {
	id, err := model.ParseClusterId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, ok, err := store.Get[model.ClusterDeployment](c.Request.Context(), h.deps.Options.Store, store.KindClusterDeployment, id.UUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "cluster deployment not found"})
		return
	}
	c.JSON(http.StatusOK, ClusterDeploymentDTO{Id: id.String()})
}

func (h *handlers) listClusterDeployments(c *gin.Context) {
	all, err := store.List[model.ClusterDeployment](c.Request.Context(), h.deps.Options.Store, store.KindClusterDeployment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]ClusterDeploymentDTO, 0, len(all))
	for id := range all {
		out = append(out, ClusterDeploymentDTO{Id: model.ClusterId{UUID: id}.String()})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) listClusterPeerStates(c *gin.Context) {
	id, err := model.ParseClusterId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := make(map[string]PeerStateDTO)
	txErr := h.deps.Options.Store.Resources(c.Request.Context(), func(v store.View) error {
		raw, ok, err := v.Get(store.KindClusterConfiguration, id.UUID)
		if err != nil {
			return err
		}
		if !ok {
			return &notFoundError{"cluster not found"}
		}
		cfg := raw.(model.ClusterConfiguration)
		members, err := actions.MemberPeersOf(v, cfg)
		if err != nil {
			return err
		}
		for _, peerId := range members {
			stateRaw, ok, err := v.Get(store.KindPeerState, peerId.UUID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			out[peerId.String()] = peerStateToDTO(stateRaw.(model.PeerState))
		}
		return nil
	})
	if txErr != nil {
		var nf *notFoundError
		if errors.As(txErr, &nf) {
			c.JSON(http.StatusNotFound, gin.H{"error": nf.msg})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": txErr.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string { return e.msg }

// writeActionError maps an internal/actions error kind to the HTTP status
// spec.md §7's error taxonomy implies: preconditions are 409/404, the
// store's wrapped persistence failures are 500, everything else is 400.
func writeActionError(c *gin.Context, err error) {
	var illegal *actions.IllegalPeerStateError
	var notFound *actions.PeerNotFoundError
	var clusterNotFound *actions.ClusterNotFoundError
	var exists *actions.ClusterDeploymentExistsError
	var deviceExists *actions.DeviceAlreadyExistsError
	var internal *actions.InternalError

	switch {
	case errors.As(err, &illegal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "invalid_peers": illegal.InvalidPeers})
	case errors.As(err, &notFound), errors.As(err, &clusterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &exists), errors.As(err, &deviceExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &internal):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
