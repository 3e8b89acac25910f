package farm

import (
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/users"
)

// Dates travel as the backend's ISO strings and are displayed as-is.

// User is a backend user as listed for assignment forms.
type User = users.Identity

// Program (programa) is an academic program that farms and lots belong to.
// Required: Name.
type Program struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
}

func (Program) Kind() Kind { return KindProgram }
func (p Program) RecordID() int { return p.ID }
func (Program) Owner() int { return 0 }
func (Program) Status() State { return StateNone }
func (p Program) Validate() error {
	c := checker{}
	c.text("nombre", p.Name)
	return c.err()
}

// Farm (granja). Required: Name, Location.
type Farm struct {
	ID        int       `json:"id,omitempty"`
	Name      string    `json:"nombre"`
	Location  string    `json:"ubicacion"`
	AdvisorID int       `json:"asesor_id,omitempty"`
	ProgramID int       `json:"programa_id,omitempty"`
	Users     []User    `json:"usuarios,omitempty"`
	Programs  []Program `json:"programas,omitempty"`
}

func (Farm) Kind() Kind { return KindFarm }
func (f Farm) RecordID() int { return f.ID }
func (f Farm) Owner() int { return f.AdvisorID }
func (Farm) Status() State { return StateNone }
func (f Farm) Validate() error {
	c := checker{}
	c.text("nombre", f.Name)
	c.text("ubicacion", f.Location)
	return c.err()
}

// Lot (lote) is a plot of a farm. Required: Name, FarmID.
type Lot struct {
	ID         int     `json:"id,omitempty"`
	Name       string  `json:"nombre"`
	FarmID     int     `json:"granja_id"`
	ProgramID  int     `json:"programa_id,omitempty"`
	CropID     int     `json:"cultivo_id,omitempty"`
	LotTypeID  int     `json:"tipo_lote_id,omitempty"`
	Area       float64 `json:"area,omitempty"`
	State      State   `json:"estado,omitempty"`
	FarmName   string  `json:"granja_nombre,omitempty"`
	CropName   string  `json:"cultivo_nombre,omitempty"`
	ProgramRef string  `json:"programa_nombre,omitempty"`
}

func (Lot) Kind() Kind { return KindLot }
func (l Lot) RecordID() int { return l.ID }
func (Lot) Owner() int { return 0 }
func (l Lot) Status() State { return l.State }
func (l Lot) Validate() error {
	c := checker{}
	c.text("nombre", l.Name)
	c.id("granja_id", l.FarmID)
	c.check(l.Area >= 0, "area", "no puede ser negativa")
	return c.err()
}

// Crop (cultivo / especie). Required: Name.
type Crop struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"nombre"`
	Type        string `json:"tipo,omitempty"`
	Description string `json:"descripcion,omitempty"`
	FarmID      int    `json:"granja_id,omitempty"`
}

func (Crop) Kind() Kind { return KindCrop }
func (c Crop) RecordID() int { return c.ID }
func (Crop) Owner() int { return 0 }
func (Crop) Status() State { return StateNone }
func (c Crop) Validate() error {
	ch := checker{}
	ch.text("nombre", c.Name)
	return ch.err()
}

// Labor is field work assigned to a worker on a lot.
// Required: LaborTypeID, WorkerID, LotID.
type Labor struct {
	ID               int        `json:"id,omitempty"`
	State            State      `json:"estado,omitempty"`
	LaborTypeID      int        `json:"tipo_labor_id"`
	LaborType        string     `json:"tipo_labor,omitempty"`
	Progress         int        `json:"avance_porcentaje"`
	Comment          *string    `json:"comentario,omitempty"`
	AssignedAt       string     `json:"fecha_asignacion,omitempty"`
	FinishedAt       *string    `json:"fecha_finalizacion,omitempty"`
	CreatedAt        string     `json:"fecha_creacion,omitempty"`
	RecommendationID int        `json:"recomendacion_id,omitempty"`
	WorkerID         int        `json:"trabajador_id"`
	LotID            int        `json:"lote_id"`
	WorkerName       string     `json:"trabajador_nombre,omitempty"`
	LotName          string     `json:"lote_nombre,omitempty"`
	FarmName         string     `json:"granja_nombre,omitempty"`
	Evidences        []Evidence `json:"evidencias,omitempty"`
}

func (Labor) Kind() Kind { return KindLabor }
func (l Labor) RecordID() int { return l.ID }
func (l Labor) Owner() int { return l.WorkerID }
func (l Labor) Status() State { return l.State }
func (l Labor) Validate() error {
	c := checker{}
	c.id("tipo_labor_id", l.LaborTypeID)
	c.id("trabajador_id", l.WorkerID)
	c.id("lote_id", l.LotID)
	c.check(l.Progress >= 0 && l.Progress <= 100, "avance_porcentaje", "debe estar entre 0 y 100")
	return c.err()
}

// ApplyProgress records progress the way the backend does: any progress moves a pending
// labor to en_progreso and 100% completes it.
func (l *Labor) ApplyProgress(pct int) error {
	if pct < 0 || pct > 100 {
		return FieldErrors{{Field: "avance_porcentaje", Message: "debe estar entre 0 y 100"}}
	}
	if IsTerminal(KindLabor, l.State) {
		return ierrors.Wrapf(ierrors.ErrConflict, "labor %d is %s", l.ID, l.State)
	}
	l.Progress = pct
	switch {
	case pct == 100:
		l.State = StateCompleted
	case pct > 0 && (l.State == StatePending || l.State == StateNone):
		l.State = StateInProgress
	}
	return nil
}

// Recommendation is an instructor directive on a lot, approved before work proceeds.
// Required: Title, Type, LotID.
type Recommendation struct {
	ID            int        `json:"id,omitempty"`
	Title         string     `json:"titulo"`
	Description   string     `json:"descripcion,omitempty"`
	Type          string     `json:"tipo"`
	State         State      `json:"estado,omitempty"`
	InstructorID  int        `json:"docente_id,omitempty"`
	LotID         int        `json:"lote_id"`
	DiagnosticID  int        `json:"diagnostico_id,omitempty"`
	CreatedAt     string     `json:"fecha_creacion,omitempty"`
	ApprovedAt    string     `json:"fecha_aprobacion,omitempty"`
	InstructorRef string     `json:"docente_nombre,omitempty"`
	LotName       string     `json:"lote_nombre,omitempty"`
	LaborCount    int        `json:"labores_count,omitempty"`
	Evidences     []Evidence `json:"evidencias,omitempty"`
}

func (Recommendation) Kind() Kind { return KindRecommendation }
func (r Recommendation) RecordID() int { return r.ID }
func (r Recommendation) Owner() int { return r.InstructorID }
func (r Recommendation) Status() State { return r.State }
func (r Recommendation) Validate() error {
	c := checker{}
	c.text("titulo", r.Title)
	c.text("tipo", r.Type)
	c.id("lote_id", r.LotID)
	return c.err()
}

// ItemCategory separates consumable supplies from returnable tools.
type ItemCategory string

const (
	CategorySupply ItemCategory = "insumo"
	CategoryTool   ItemCategory = "herramienta"
)

// InventoryItem (insumo or herramienta). An empty Category means a supply.
// Required: Name, and Unit for supplies.
type InventoryItem struct {
	ID          int          `json:"id,omitempty"`
	Category    ItemCategory `json:"categoria"`
	Name        string       `json:"nombre"`
	Description string       `json:"descripcion,omitempty"`
	Quantity    float64      `json:"cantidad_disponible"`
	Unit        string       `json:"unidad_medida,omitempty"`
	FarmID      int          `json:"granja_id,omitempty"`
	State       State        `json:"estado,omitempty"`
}

func (InventoryItem) Kind() Kind { return KindInventory }
func (i InventoryItem) RecordID() int { return i.ID }
func (InventoryItem) Owner() int { return 0 }
func (i InventoryItem) Status() State { return i.State }
func (i InventoryItem) Validate() error {
	c := checker{}
	c.text("nombre", i.Name)
	c.check(i.Category == "" || i.Category == CategorySupply || i.Category == CategoryTool, "categoria", "debe ser insumo o herramienta")
	c.check(i.Quantity >= 0, "cantidad_disponible", "no puede ser negativa")
	if i.Category != CategoryTool {
		c.text("unidad_medida", i.Unit)
	}
	return c.err()
}

// Collection returns the REST collection the item lives in.
func (i InventoryItem) Collection() string {
	if i.Category == CategoryTool {
		return "herramientas"
	}
	return "insumos"
}

// Movement is an inventory movement, usually tied to a labor.
type Movement struct {
	ID       int     `json:"id,omitempty"`
	ItemID   int     `json:"item_id"`
	LaborID  int     `json:"labor_id,omitempty"`
	Quantity float64 `json:"cantidad"`
	Type     string  `json:"tipo_movimiento"`
	Date     string  `json:"fecha_movimiento,omitempty"`
	Notes    string  `json:"observaciones,omitempty"`
	ItemName string  `json:"item_nombre,omitempty"`
}

func (Movement) Kind() Kind { return KindMovement }
func (m Movement) RecordID() int { return m.ID }
func (Movement) Owner() int { return 0 }
func (Movement) Status() State { return StateNone }

// Evidence is an uploaded file attached to a labor or recommendation.
// Required: Type, FileURL, EntityType, EntityID.
type Evidence struct {
	ID          int    `json:"id,omitempty"`
	Type        string `json:"tipo"`
	Description string `json:"descripcion,omitempty"`
	FileURL     string `json:"url_archivo"`
	EntityType  Kind   `json:"tipo_entidad,omitempty"`
	EntityID    int    `json:"entidad_id,omitempty"`
	UserID      int    `json:"usuario_id,omitempty"`
	CreatedAt   string `json:"fecha_creacion,omitempty"`
}

func (Evidence) Kind() Kind { return KindEvidence }
func (e Evidence) RecordID() int { return e.ID }
func (e Evidence) Owner() int { return e.UserID }
func (Evidence) Status() State { return StateNone }
func (e Evidence) Validate() error {
	c := checker{}
	c.text("tipo", e.Type)
	c.text("url_archivo", e.FileURL)
	c.check(e.EntityType == KindLabor || e.EntityType == KindRecommendation, "tipo_entidad", "debe ser labor o recomendacion")
	c.id("entidad_id", e.EntityID)
	return c.err()
}
