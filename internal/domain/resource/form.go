package resource

type FormMode string

const (
	FormClosed FormMode = "closed"
	FormNew    FormMode = "new"
	FormEdit   FormMode = "edit"
)

// Form is the state of the create/edit dialog. Editing is set only in
// FormEdit mode; Values holds the pre-filled fields.
type Form[K Entity] struct {
	Mode    FormMode `json:"mode"`
	Editing string   `json:"editing,omitempty"`
	Values  *K       `json:"values,omitempty"`
}

func (f Form[K]) Open() bool {
	return f.Mode == FormNew || f.Mode == FormEdit
}

func closedForm[K Entity]() Form[K] {
	return Form[K]{Mode: FormClosed}
}
