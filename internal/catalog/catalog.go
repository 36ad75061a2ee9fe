// Package catalog holds the static registry of Agendia feature modules.
//
// The registry feeds three consumers: keyword-based module detection, the
// module overview injected into every system prompt, and the per-module
// summaries the ingestion job embeds as module vectors.
package catalog

import (
	"fmt"
	"strings"
)

// Submodule is a named sub-feature with its own detection keywords.
type Submodule struct {
	ID       string
	Keywords []string
}

// Module describes one feature area of the host application.
type Module struct {
	ID          string
	Name        string
	Description string
	Keywords    []string
	Submodules  []Submodule
}

// Modules is the full, load-order-stable module registry. Hand-authored and
// versioned with the codebase.
var Modules = []Module{
	{
		ID:          "appointments",
		Name:        "Citas y reservas",
		Description: "Gestión de citas: creación, reprogramación, cancelación y confirmación de reservas de clientes.",
		Keywords:    []string{"cita", "reserva", "turno", "reservar", "cancelar cita", "reprogramar", "agenda"},
		Submodules: []Submodule{
			{ID: "booking", Keywords: []string{"reservar", "nueva cita", "disponibilidad"}},
			{ID: "cancellation", Keywords: []string{"cancelación", "anular", "no show"}},
			{ID: "reminders", Keywords: []string{"recordatorio", "aviso de cita"}},
		},
	},
	{
		ID:          "schedules",
		Name:        "Horarios",
		Description: "Horarios de apertura, franjas de trabajo, días festivos y cierres temporales del negocio.",
		Keywords:    []string{"horario", "apertura", "cierre", "franja", "festivo", "disponible", "jornada"},
		Submodules: []Submodule{
			{ID: "working-hours", Keywords: []string{"horario de apertura", "horario laboral"}},
			{ID: "closures", Keywords: []string{"cerrar horario", "cierre temporal", "vacaciones"}},
		},
	},
	{
		ID:          "clients",
		Name:        "Clientes",
		Description: "Ficha de clientes: datos de contacto, historial de visitas, notas y consentimientos.",
		Keywords:    []string{"cliente", "ficha", "contacto", "historial", "consentimiento"},
		Submodules: []Submodule{
			{ID: "profiles", Keywords: []string{"ficha de cliente", "datos del cliente"}},
			{ID: "history", Keywords: []string{"historial de visitas", "visitas anteriores"}},
		},
	},
	{
		ID:          "services",
		Name:        "Servicios",
		Description: "Catálogo de servicios ofrecidos: duración, precio, categorías y asignación de personal.",
		Keywords:    []string{"servicio", "precio", "duración", "tratamiento", "categoría"},
		Submodules: []Submodule{
			{ID: "pricing", Keywords: []string{"precio del servicio", "tarifa"}},
			{ID: "assignment", Keywords: []string{"asignar servicio", "quién realiza"}},
		},
	},
	{
		ID:          "staff",
		Name:        "Personal",
		Description: "Gestión del equipo: profesionales, sus horarios individuales, permisos y ausencias.",
		Keywords:    []string{"empleado", "profesional", "equipo", "ausencia", "permiso", "personal"},
		Submodules: []Submodule{
			{ID: "absences", Keywords: []string{"ausencia", "baja", "día libre"}},
		},
	},
	{
		ID:          "blog",
		Name:        "Blog",
		Description: "Publicación de artículos en la web del negocio: borradores, programación y categorías.",
		Keywords:    []string{"blog", "artículo", "publicar", "entrada", "borrador"},
		Submodules: []Submodule{
			{ID: "publishing", Keywords: []string{"publicar artículo", "programar entrada"}},
		},
	},
	{
		ID:          "billing",
		Name:        "Facturación",
		Description: "Cobros, facturas, bonos y suscripciones de clientes.",
		Keywords:    []string{"factura", "cobro", "pago", "bono", "suscripción", "ticket"},
		Submodules: []Submodule{
			{ID: "invoices", Keywords: []string{"emitir factura", "factura rectificativa"}},
			{ID: "vouchers", Keywords: []string{"bono de sesiones", "canjear bono"}},
		},
	},
	{
		ID:          "notifications",
		Name:        "Notificaciones",
		Description: "Avisos automáticos por email y SMS a clientes y al equipo.",
		Keywords:    []string{"notificación", "email", "sms", "aviso", "plantilla"},
	},
	{
		ID:          "settings",
		Name:        "Configuración",
		Description: "Configuración general del negocio: datos fiscales, idioma, integraciones y usuarios.",
		Keywords:    []string{"configuración", "ajustes", "integración", "idioma", "datos fiscales"},
	},
}

// ByID returns the module with the given id, or false when unknown.
func ByID(id string) (Module, bool) {
	for _, m := range Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// pathModules maps UI navigation path prefixes to module ids.
var pathModules = map[string]string{
	"/appointments":  "appointments",
	"/calendar":      "appointments",
	"/schedules":     "schedules",
	"/clients":       "clients",
	"/services":      "services",
	"/staff":         "staff",
	"/blog":          "blog",
	"/billing":       "billing",
	"/notifications": "notifications",
	"/settings":      "settings",
}

// FromPath maps a UI navigation path to the module it belongs to.
// Matching is by first path segment, so "/clients/42/history" → clients.
func FromPath(path string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return "", false
	}
	segment := path
	if idx := strings.Index(path[1:], "/"); idx != -1 {
		segment = path[:idx+1]
	}
	id, ok := pathModules[segment]
	return id, ok
}

// Summary renders the text the ingestion job embeds as this module's
// semantic summary vector. Detection matches question embeddings against
// these vectors, so the wording must track Keywords and Description.
func (m Module) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", m.Name, m.Description)
	sb.WriteString(" Palabras clave: ")
	sb.WriteString(strings.Join(m.Keywords, ", "))
	for _, sub := range m.Submodules {
		sb.WriteString("; ")
		sb.WriteString(sub.ID)
		sb.WriteString(": ")
		sb.WriteString(strings.Join(sub.Keywords, ", "))
	}
	sb.WriteString(".")
	return sb.String()
}

// AllKeywords returns the module's own keywords plus all submodule keywords.
func (m Module) AllKeywords() []string {
	out := make([]string, 0, len(m.Keywords))
	out = append(out, m.Keywords...)
	for _, sub := range m.Submodules {
		out = append(out, sub.Keywords...)
	}
	return out
}

// Overview renders the catalog block for the system prompt: one line per
// module so the model knows which feature areas exist.
func Overview() string {
	var sb strings.Builder
	sb.WriteString("Módulos de la aplicación:\n")
	for _, m := range Modules {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", m.Name, m.ID, m.Description)
	}
	return sb.String()
}
