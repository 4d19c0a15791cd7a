// Package schema defines the provisioned domain schema: the table DDL in
// dependency order, seed rows, the foreign-key delete order, and the
// per-edge orphan checks used by integrity validation.
package schema

// Schema version recorded in the fingerprint when DDL is applied.
const Version = 3

// DDL for all tables, parents before children.
const (
	createRoles = `CREATE TABLE roles (
    role_id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    seeded INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);`

	createPeople = `CREATE TABLE people (
    person_id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    row_version INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createPersonRoles = `CREATE TABLE person_roles (
    person_id TEXT NOT NULL,
    role_id TEXT NOT NULL,
    assigned_at TEXT NOT NULL,
    PRIMARY KEY (person_id, role_id),
    FOREIGN KEY (person_id) REFERENCES people(person_id),
    FOREIGN KEY (role_id) REFERENCES roles(role_id)
);`

	createWalls = `CREATE TABLE walls (
    wall_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    width_cm INTEGER NOT NULL,
    height_cm INTEGER NOT NULL,
    row_version INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createWindows = `CREATE TABLE windows (
    window_id TEXT PRIMARY KEY,
    wall_id TEXT NOT NULL,
    width_cm INTEGER NOT NULL,
    height_cm INTEGER NOT NULL,
    offset_cm INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    FOREIGN KEY (wall_id) REFERENCES walls(wall_id)
);`
)

// Index DDL for common lookups.
const (
	idxPersonRolesPerson = `CREATE INDEX idx_person_roles_person ON person_roles(person_id);`
	idxPersonRolesRole   = `CREATE INDEX idx_person_roles_role ON person_roles(role_id);`
	idxWindowsWall       = `CREATE INDEX idx_windows_wall ON windows(wall_id);`
	idxPeopleEmail       = `CREATE INDEX idx_people_email ON people(email);`
)

// CreateDDL lists all CREATE TABLE statements in dependency order.
var CreateDDL = []string{
	createRoles,
	createPeople,
	createPersonRoles,
	createWalls,
	createWindows,
}

// IndexDDL lists all CREATE INDEX statements.
var IndexDDL = []string{
	idxPersonRolesPerson,
	idxPersonRolesRole,
	idxWindowsWall,
	idxPeopleEmail,
}

// TableSpec describes one entity table for reset and validation purposes.
type TableSpec struct {
	Name string

	// Seeded marks tables whose designated seed rows may survive a reset.
	Seeded bool
}

// DeleteOrder lists every entity table, children before parents. Bulk
// deletes walk this list inside one transaction; a user table found in the
// store but absent here fails the reset with an ordering violation, so a
// newly added entity type can never be skipped silently.
var DeleteOrder = []TableSpec{
	{Name: "person_roles"},
	{Name: "windows"},
	{Name: "people"},
	{Name: "walls"},
	{Name: "roles", Seeded: true},
}

// OrphanCheck is a query returning the number of child rows whose parent
// row is missing, for one foreign-key edge.
type OrphanCheck struct {
	Table string
	Query string
}

// OrphanChecks covers every foreign-key edge in the schema. PRAGMA
// foreign_key_check catches these too, but explicit per-edge counts give
// the validator attributable violation details.
var OrphanChecks = []OrphanCheck{
	{
		Table: "person_roles",
		Query: `SELECT COUNT(*) FROM person_roles pr
			LEFT JOIN people p ON p.person_id = pr.person_id
			WHERE p.person_id IS NULL`,
	},
	{
		Table: "person_roles",
		Query: `SELECT COUNT(*) FROM person_roles pr
			LEFT JOIN roles r ON r.role_id = pr.role_id
			WHERE r.role_id IS NULL`,
	},
	{
		Table: "windows",
		Query: `SELECT COUNT(*) FROM windows w
			LEFT JOIN walls wa ON wa.wall_id = w.wall_id
			WHERE wa.wall_id IS NULL`,
	},
}
