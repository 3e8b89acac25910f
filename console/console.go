// Package console wires the session, connectivity, queue, REST client and module controllers
// into one application object.
package console

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/granjas-console/api"
	"github.com/jrsteele09/granjas-console/connectivity"
	"github.com/jrsteele09/granjas-console/crud"
	"github.com/jrsteele09/granjas-console/farm"
	"github.com/jrsteele09/granjas-console/internal/config"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/policy"
	"github.com/jrsteele09/granjas-console/queue"
	"github.com/jrsteele09/granjas-console/sessions"
	"github.com/jrsteele09/granjas-console/storage"
	"github.com/jrsteele09/granjas-console/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators a Console is built from. Only Storage is required.
type Deps struct {
	Storage    storage.Store
	Network    connectivity.NetworkSignal
	HTTPClient *http.Client
	Notifier   crud.Notifier
	Confirmer  crud.Confirmer
	Policy     *policy.Policy
}

type Console struct {
	Sessions *sessions.Store
	API      *api.Client
	Queue    *queue.Queue
	Monitor  *connectivity.Monitor

	Farms           *crud.Controller[farm.Farm]
	Lots            *crud.Controller[farm.Lot]
	Crops           *crud.Controller[farm.Crop]
	Labors          *crud.Controller[farm.Labor]
	Recommendations *crud.Controller[farm.Recommendation]
	Inventory       *crud.Controller[farm.InventoryItem]

	policy   *policy.Policy
	notifier crud.Notifier
	network  connectivity.NetworkSignal
	dial     *connectivity.DialSignal
	dialWait time.Duration
	polling  atomic.Bool
	modules  []module
}

type module interface {
	Name() string
	Load(ctx context.Context) error
	Loaded() bool
}

type nopNotifier struct{}

func (nopNotifier) Notify(crud.Notification) {}

func New(cfg config.Config, deps Deps) (*Console, error) {
	if deps.Storage == nil {
		return nil, errors.New("[console.New] storage is required")
	}
	if deps.Policy == nil {
		deps.Policy = policy.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}

	c := &Console{policy: deps.Policy, notifier: deps.Notifier, network: deps.Network}

	sess, err := sessions.NewStore(deps.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "[console.New] session store")
	}
	c.Sessions = sess

	opts := []api.Option{
		api.WithTokenProvider(sess),
		api.WithHealthURL(cfg.GetHealthURL()),
		api.WithRetries(cfg.GetHTTPRetries()),
		api.WithUnauthorizedHook(sess.Invalidate),
	}
	if deps.HTTPClient != nil {
		opts = append(opts, api.WithHTTPClient(deps.HTTPClient))
	}
	client, err := api.Open(cfg.GetAPIURL(), opts...)
	if err != nil {
		sess.Close()
		return nil, errors.Wrap(err, "[console.New] api client")
	}
	c.API = client
	sess.SetRevoker(client)

	c.Queue = queue.New(queue.NewStoreRepo(deps.Storage), queue.WithRate(cfg.GetReplayRate(), 1))

	if c.network == nil {
		c.dial = connectivity.NewDialSignal(cfg.GetNetworkCheckAddr(), cfg.GetProbeInterval(), cfg.GetProbeTimeout())
		c.dialWait = cfg.GetProbeTimeout()
		c.network = c.dial
		c.checkNetwork()
	}
	c.Monitor = connectivity.NewMonitor(c.network, api.HealthProber{Client: client},
		connectivity.WithProbeTimeout(cfg.GetProbeTimeout()),
		connectivity.WithProbeInterval(cfg.GetProbeInterval()),
		connectivity.WithDebounce(cfg.GetReconnectDebounce()),
		connectivity.WithSessionCheck(sess.IsActive),
		connectivity.WithReconnectHook(c.syncOnReconnect),
	)

	c.buildModules(crud.Deps{
		Notifier:  deps.Notifier,
		Confirmer: deps.Confirmer,
		Network:   c,
		Queue:     c.Queue,
	})
	return c, nil
}

func (c *Console) buildModules(d crud.Deps) {
	cl := c.API

	c.Farms = crud.NewController("granjas", listFn[farm.Farm](cl, farm.KindFarm), d).
		WithRef("usuarios", crud.RefOf(listFn[farm.User](cl, farm.KindUser))).
		WithRef("programas", crud.RefOf(listFn[farm.Program](cl, farm.KindProgram)))

	c.Lots = crud.NewController("lotes", listFn[farm.Lot](cl, farm.KindLot), d).
		WithRef("granjas", crud.RefOf(listFn[farm.Farm](cl, farm.KindFarm))).
		WithRef("programas", crud.RefOf(listFn[farm.Program](cl, farm.KindProgram))).
		WithRef("cultivos", crud.RefOf(listFn[farm.Crop](cl, farm.KindCrop)))

	c.Crops = crud.NewController("cultivos", listFn[farm.Crop](cl, farm.KindCrop), d).
		WithRef("granjas", crud.RefOf(listFn[farm.Farm](cl, farm.KindFarm)))

	c.Labors = crud.NewController("labores", listFn[farm.Labor](cl, farm.KindLabor), d).
		WithRef("lotes", crud.RefOf(listFn[farm.Lot](cl, farm.KindLot))).
		WithRef("recomendaciones", crud.RefOf(c.visibleRecommendations)).
		WithRef("usuarios", crud.RefOf(listFn[farm.User](cl, farm.KindUser)))

	c.Recommendations = crud.NewController("recomendaciones", c.visibleRecommendations, d).
		WithRef("lotes", crud.RefOf(listFn[farm.Lot](cl, farm.KindLot)))

	c.Inventory = crud.NewController("inventario", cl.ListSupplies, d).
		WithRef("herramientas", crud.RefOf(cl.ListTools)).
		WithRef("movimientos", crud.RefOf(listFn[farm.Movement](cl, farm.KindMovement)))

	c.modules = []module{c.Farms, c.Lots, c.Crops, c.Labors, c.Recommendations, c.Inventory}
}

func listFn[T any](cl *api.Client, kind farm.Kind) func(ctx context.Context) ([]T, error) {
	return func(ctx context.Context) ([]T, error) {
		return api.List[T](ctx, cl, kind, nil)
	}
}

// visibleRecommendations lists the recommendations the current user may see.
func (c *Console) visibleRecommendations(ctx context.Context) ([]farm.Recommendation, error) {
	all, err := api.List[farm.Recommendation](ctx, c.API, farm.KindRecommendation, nil)
	if err != nil {
		return nil, err
	}
	u := c.Sessions.CurrentUser()
	if u == nil {
		return []farm.Recommendation{}, nil
	}
	return policy.Filter(c.policy, u.RoleID, u.ID, all), nil
}

// IsNetworkOnline reports the network signal. The default dial signal is checked on demand
// unless Start is polling it, so one-shot callers never act on a stale answer.
func (c *Console) IsNetworkOnline() bool {
	if c.dial != nil && !c.polling.Load() {
		c.checkNetwork()
	}
	return c.Monitor.IsNetworkOnline()
}

func (c *Console) checkNetwork() {
	ctx, cancel := context.WithTimeout(context.Background(), c.dialWait)
	defer cancel()
	c.dial.Check(ctx)
}

// Start begins connectivity monitoring. Reconnecting with an active session replays the queue.
func (c *Console) Start(ctx context.Context) {
	if c.dial != nil {
		c.polling.Store(true)
		c.dial.Start(ctx)
	}
	c.Monitor.Start(ctx)
}

func (c *Console) Stop() {
	c.Monitor.Stop()
	if c.dial != nil {
		c.dial.Stop()
		c.polling.Store(false)
	}
	c.Sessions.Close()
}

// Status is the console's overall state.
type Status struct {
	User         *users.Identity     `json:"user,omitempty"`
	Connectivity connectivity.Status `json:"connectivity"`
	Pending      int                 `json:"pending"`
}

func (c *Console) Status() Status {
	pending, err := c.Queue.Len()
	if err != nil {
		log.Err(err).Msg("unable to read pending writes")
	}
	return Status{
		User:         c.Sessions.CurrentUser(),
		Connectivity: c.Monitor.Status(),
		Pending:      pending,
	}
}

// Policy returns the authorization policy the console enforces.
func (c *Console) Policy() *policy.Policy {
	return c.policy
}

// LoginWithPassword authenticates against the backend and starts a session. When connectivity
// is already up, queued writes are replayed right away.
func (c *Console) LoginWithPassword(ctx context.Context, email, password string) (*users.Identity, error) {
	resp, err := c.API.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.Sessions.Login(resp.AccessToken, resp.Profile()); err != nil {
		return nil, err
	}
	if c.Monitor.Status().Up() {
		if _, err := c.ReplayNow(ctx); err != nil && !ierrors.Is(err, ierrors.ErrReplayInProgress) {
			log.Err(err).Msg("replay after login failed")
		}
	}
	return c.Sessions.CurrentUser(), nil
}

func (c *Console) Logout(ctx context.Context) error {
	return c.Sessions.Logout(ctx)
}

// ReplayNow sends every queued write and refreshes the modules already on screen.
func (c *Console) ReplayNow(ctx context.Context) (queue.ReplayReport, error) {
	if !c.Sessions.IsActive() {
		return queue.ReplayReport{}, ierrors.ErrUnauthenticated
	}
	report, err := c.Queue.Replay(ctx, c.API)
	if err != nil {
		return report, err
	}
	if report.Failed != "" {
		c.notifier.Notify(crud.Notification{
			Level:   crud.LevelError,
			Message: "No se pudieron sincronizar los cambios pendientes: " + crud.Message(report.Err),
			Err:     report.Err,
		})
	} else if len(report.Succeeded) > 0 {
		c.notifier.Notify(crud.Notification{Level: crud.LevelSuccess, Message: "Cambios pendientes sincronizados"})
	}
	if len(report.Succeeded) > 0 {
		c.reloadLoaded(ctx)
	}
	return report, nil
}

func (c *Console) syncOnReconnect(ctx context.Context) {
	report, err := c.ReplayNow(ctx)
	if err != nil && !ierrors.Is(err, ierrors.ErrReplayInProgress) {
		log.Err(err).Msg("sync after reconnect failed")
		return
	}
	log.Info().Int("succeeded", len(report.Succeeded)).Int("remaining", report.Remaining).Msg("sync after reconnect")
}

func (c *Console) reloadLoaded(ctx context.Context) {
	for _, m := range c.modules {
		if m.Loaded() {
			_ = m.Load(ctx)
		}
	}
}
