package validators

import "go.mongodb.org/mongo-driver/bson"

var SessionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"person_id",
			"kind",
			"start_time",
			"expected_end_time",
			"time_limit_minutes",
			"status",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"person_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"kind": bson.M{
				"enum": []string{"VISIT", "RESOURCE"},
			},
			"resource_id": bson.M{
				"bsonType": "string",
			},
			"start_time": bson.M{
				"bsonType": "date",
			},
			"end_time": bson.M{
				"bsonType": "date",
			},
			"expected_end_time": bson.M{
				"bsonType": "date",
			},
			"time_limit_minutes": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},
			"status": bson.M{
				"enum": []string{"ACTIVE", "COMPLETED", "CANCELLED"},
			},
			"duration_minutes": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
		},
	},
}

var CheckoutValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"person_id",
			"book_id",
			"checkout_date",
			"due_date",
			"status",
			"outstanding",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"person_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"book_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"checkout_date": bson.M{
				"bsonType": "date",
			},
			"due_date": bson.M{
				"bsonType": "date",
			},
			"return_date": bson.M{
				"bsonType": "date",
			},
			"status": bson.M{
				"enum": []string{"ACTIVE", "RETURNED", "OVERDUE"},
			},
			"outstanding": bson.M{
				"bsonType": "bool",
			},
			"fine_eligible": bson.M{
				"bsonType": "bool",
			},
			"days_overdue": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
			"fine_cents": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
		},
	},
}
