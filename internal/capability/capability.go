// Package capability defines the deterministic allow/block rule table for
// actions in the host application.
//
// The table is hand-authored data, versioned with the codebase. When both
// this table and retrieved documentation speak to the same action, the
// table wins; the prompt assembler marks the rendered text as authoritative.
package capability

// ActionRule states when an action is allowed or blocked and what the user
// can do about a block. All fields are free text; empty fields are omitted
// from rendering.
type ActionRule struct {
	AllowedIf  string
	BlockedIf  string
	Resolution string
	Notes      string
}

// Entity is a domain object inside a module with an optional state machine
// and a set of governed actions.
type Entity struct {
	States      []string
	Transitions string
	Actions     map[string]ActionRule
}

// ModuleCapabilities groups the rule-governed entities of one module.
type ModuleCapabilities struct {
	Entities map[string]Entity
}

// Map is the full capability table keyed by module id. Not user-editable at
// runtime.
var Map = map[string]ModuleCapabilities{
	"appointments": {
		Entities: map[string]Entity{
			"cita": {
				States:      []string{"pendiente", "confirmada", "completada", "cancelada"},
				Transitions: "pendiente → confirmada → completada; cualquier estado previo a completada puede pasar a cancelada",
				Actions: map[string]ActionRule{
					"cancelar": {
						AllowedIf:  "la cita no está completada",
						BlockedIf:  "la cita ya fue completada",
						Resolution: "una cita completada solo puede anotarse, no cancelarse",
					},
					"reprogramar": {
						AllowedIf:  "existe una franja libre compatible con el servicio",
						BlockedIf:  "la nueva franja se solapa con otra reserva del mismo profesional",
						Resolution: "elegir otra franja desde el calendario o reasignar el profesional",
					},
					"confirmar": {
						AllowedIf: "la cita está en estado pendiente",
						Notes:     "la confirmación dispara el recordatorio automático al cliente",
					},
				},
			},
		},
	},
	"schedules": {
		Entities: map[string]Entity{
			"horario": {
				States:      []string{"activo", "cerrado"},
				Transitions: "activo ↔ cerrado",
				Actions: map[string]ActionRule{
					"cerrar": {
						AllowedIf:  "no quedan reservas activas dentro de la franja",
						BlockedIf:  "existen reservas activas en la franja a cerrar",
						Resolution: "cancelar o reprogramar primero las reservas afectadas desde Citas",
					},
					"modificar": {
						AllowedIf: "la modificación no deja reservas existentes fuera de horario",
						BlockedIf: "alguna reserva confirmada quedaría fuera de la nueva franja",
					},
				},
			},
			"festivo": {
				Actions: map[string]ActionRule{
					"añadir": {
						AllowedIf:  "el día no tiene reservas confirmadas",
						Resolution: "reprogramar las reservas del día antes de marcarlo como festivo",
					},
				},
			},
		},
	},
	"clients": {
		Entities: map[string]Entity{
			"cliente": {
				Actions: map[string]ActionRule{
					"eliminar": {
						AllowedIf:  "el cliente no tiene citas futuras ni facturas pendientes",
						BlockedIf:  "existen citas futuras o saldo pendiente",
						Resolution: "cancelar las citas futuras y liquidar el saldo antes de eliminar",
						Notes:      "la eliminación anonimiza el historial, no lo borra",
					},
					"fusionar": {
						AllowedIf: "ambas fichas pertenecen al mismo negocio",
					},
				},
			},
		},
	},
	"services": {
		Entities: map[string]Entity{
			"servicio": {
				States: []string{"visible", "oculto"},
				Actions: map[string]ActionRule{
					"eliminar": {
						AllowedIf:  "el servicio no aparece en citas futuras",
						BlockedIf:  "hay citas futuras con este servicio",
						Resolution: "ocultar el servicio en lugar de eliminarlo, o reasignar las citas",
					},
					"cambiar precio": {
						AllowedIf: "siempre; las citas ya reservadas conservan el precio original",
					},
				},
			},
		},
	},
	"staff": {
		Entities: map[string]Entity{
			"profesional": {
				Actions: map[string]ActionRule{
					"dar de baja": {
						AllowedIf:  "no tiene citas futuras asignadas",
						BlockedIf:  "tiene citas futuras asignadas",
						Resolution: "reasignar sus citas a otro profesional desde el calendario",
					},
					"registrar ausencia": {
						AllowedIf: "la ausencia no se solapa con citas confirmadas",
						Notes:     "con citas confirmadas el sistema ofrece reprogramación masiva",
					},
				},
			},
		},
	},
	"blog": {
		Entities: map[string]Entity{
			"artículo": {
				States:      []string{"borrador", "programado", "publicado"},
				Transitions: "borrador → programado → publicado; publicado puede volver a borrador",
				Actions: map[string]ActionRule{
					"publicar": {
						AllowedIf: "el artículo tiene título, contenido y categoría",
						BlockedIf: "faltan campos obligatorios",
					},
					"eliminar": {
						AllowedIf: "siempre; los artículos publicados se retiran de la web al instante",
					},
				},
			},
		},
	},
	"billing": {
		Entities: map[string]Entity{
			"factura": {
				States: []string{"borrador", "emitida", "rectificada"},
				Actions: map[string]ActionRule{
					"anular": {
						AllowedIf:  "nunca directamente",
						BlockedIf:  "las facturas emitidas son inmutables",
						Resolution: "emitir una factura rectificativa",
					},
				},
			},
			"bono": {
				Actions: map[string]ActionRule{
					"reembolsar": {
						AllowedIf: "quedan sesiones sin consumir",
						Notes:     "el reembolso es proporcional a las sesiones restantes",
					},
				},
			},
		},
	},
}
