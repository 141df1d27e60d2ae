package preloadlog

const Schema = `
CREATE TABLE IF NOT EXISTS preload (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_key TEXT NOT NULL,
	study_uid TEXT NOT NULL,
	image_count INTEGER NOT NULL,
	study_date TEXT NOT NULL,
	completed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_preload_patient
	ON preload (patient_key, completed_at);
`
