package farm

// Kind names a resource family managed by the console.
type Kind string

const (
	KindFarm           Kind = "granja"
	KindLot            Kind = "lote"
	KindCrop           Kind = "cultivo"
	KindProgram        Kind = "programa"
	KindLabor          Kind = "labor"
	KindRecommendation Kind = "recomendacion"
	KindInventory      Kind = "inventario"
	KindMovement       Kind = "movimiento"
	KindEvidence       Kind = "evidencia"
	KindUser           Kind = "usuario"
)

var collections = map[Kind]string{
	KindFarm:           "granjas",
	KindLot:            "lotes",
	KindCrop:           "cultivos",
	KindProgram:        "programas",
	KindLabor:          "labores",
	KindRecommendation: "recomendaciones",
	KindInventory:      "insumos",
	KindMovement:       "movimientos",
	KindEvidence:       "evidencias",
	KindUser:           "usuarios",
}

// Collection returns the REST collection name for k, e.g. "labores".
func (k Kind) Collection() string {
	return collections[k]
}

// ParseKind accepts either the kind name or its collection name.
func ParseKind(s string) (Kind, bool) {
	if _, ok := collections[Kind(s)]; ok {
		return Kind(s), true
	}
	for k, c := range collections {
		if c == s {
			return k, true
		}
	}
	return "", false
}

// Resource is implemented by every record the authorization policy reasons about.
type Resource interface {
	Kind() Kind
	RecordID() int
	Owner() int    // user id owning or assigned to the record, 0 when none
	Status() State // lifecycle state, "" for stateless records
}
