package sqlite

// Timestamps are stored as unix nanoseconds so ORDER BY on them is
// exact; calendar dates are stored as YYYY-MM-DD text.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('admin', 'staff', 'user')),
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_by INTEGER REFERENCES users (id),
	created_at INTEGER NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	site_id INTEGER NOT NULL REFERENCES sites (id) ON DELETE CASCADE,
	description TEXT NOT NULL DEFAULT '',
	start_date TEXT,
	created_by INTEGER REFERENCES users (id),
	created_at INTEGER NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_projects_site_id ON projects (site_id);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	document_type TEXT NOT NULL CHECK (document_type IN ('DPR', 'MOM', 'WPR', 'PHOTO')),
	title TEXT NOT NULL,
	file_path TEXT NOT NULL UNIQUE,
	thumbnail_path TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	uploaded_by INTEGER REFERENCES users (id),
	upload_date INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	report_date TEXT
);

CREATE INDEX IF NOT EXISTS idx_documents_project_id ON documents (project_id);
CREATE INDEX IF NOT EXISTS idx_documents_uploaded_by ON documents (uploaded_by);

CREATE TABLE IF NOT EXISTS staff_assignments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	staff_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	project_id INTEGER NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	assigned_by INTEGER REFERENCES users (id),
	assigned_at INTEGER NOT NULL,
	UNIQUE (staff_id, project_id)
);
`
